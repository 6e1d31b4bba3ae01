package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

func TestChunkerKeepsShortDocumentWhole(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(nil)
	doc := types.Document{
		Content:  "Short review about the company culture.",
		Metadata: map[string]any{"company": "acme"},
	}

	chunks := chunker.Split(doc)
	require.Len(t, chunks, 1)
	assert.Equal(t, doc.Content, chunks[0].Content)
	assert.Equal(t, "acme", chunks[0].Metadata["company"])
	assert.Equal(t, 0, chunks[0].Metadata["chunk_index"])
	assert.Equal(t, 1, chunks[0].Metadata["chunk_total"])
}

func TestChunkerSplitsLongDocument(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(nil, WithChunkSize(50), WithChunkOverlap(10))

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("The management team holds a weekly all-hands meeting. ")
	}
	doc := types.Document{Content: sb.String(), Metadata: map[string]any{"year": "2024"}}

	chunks := chunker.Split(doc)
	require.Greater(t, len(chunks), 1)

	for i, chunk := range chunks {
		assert.NotEmpty(t, chunk.Content)
		assert.Equal(t, i, chunk.Metadata["chunk_index"])
		assert.Equal(t, len(chunks), chunk.Metadata["chunk_total"])
		assert.Equal(t, "2024", chunk.Metadata["year"])
	}
}

func TestChunkerDoesNotMutateSourceMetadata(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(nil)
	md := map[string]any{"company": "acme"}
	chunker.Split(types.Document{Content: "some review", Metadata: md})

	_, leaked := md["chunk_index"]
	assert.False(t, leaked, "source metadata must stay untouched")
}

func TestChunkerEmptyDocument(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(nil)
	assert.Nil(t, chunker.Split(types.Document{Content: "   "}))
}

func TestChunkerHandlesCJKSentences(t *testing.T) {
	t.Parallel()

	chunker := NewChunker(nil, WithChunkSize(20), WithChunkOverlap(0))

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("这家公司的管理层沟通透明，晋升机制清晰。")
	}
	chunks := chunker.Split(types.Document{Content: sb.String()})
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.True(t, strings.HasSuffix(chunk.Content, "。"),
			"chunks should break at sentence boundaries: %q", chunk.Content)
	}
}

func TestEstimateCounter(t *testing.T) {
	t.Parallel()

	c := estimateCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("abc"))
	assert.Equal(t, 3, c.Count(strings.Repeat("x", 12)))
}
