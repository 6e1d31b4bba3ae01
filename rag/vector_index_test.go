package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

func TestDistanceToSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, DistanceToSimilarity(0))
	assert.Equal(t, 0.5, DistanceToSimilarity(1))
	assert.Equal(t, 0.0, DistanceToSimilarity(2))
	// 数值噪声可能让距离略超 2，不得出现负相似度
	assert.Equal(t, 0.0, DistanceToSimilarity(2.3))
}

func TestMatchesFilters(t *testing.T) {
	t.Parallel()

	doc := types.Document{Metadata: map[string]any{"company": "acme", "year": "2024"}}

	assert.True(t, MatchesFilters(doc, nil))
	assert.True(t, MatchesFilters(doc, map[string]any{"company": "acme"}))
	assert.True(t, MatchesFilters(doc, map[string]any{"company": "acme", "year": "2024"}))
	assert.False(t, MatchesFilters(doc, map[string]any{"company": "other"}))
	assert.False(t, MatchesFilters(doc, map[string]any{"missing": "x"}))
}

func TestInMemoryIndexQueryOrdering(t *testing.T) {
	t.Parallel()

	idx := NewInMemoryVectorIndex(nil)
	ctx := context.Background()

	entries := []types.IndexedEntry{
		{DocumentID: "a", Document: types.Document{Content: "exact match"}, Embedding: []float64{1, 0, 0}},
		{DocumentID: "b", Document: types.Document{Content: "orthogonal"}, Embedding: []float64{0, 1, 0}},
		{DocumentID: "c", Document: types.Document{Content: "close match"}, Embedding: []float64{0.9, 0.1, 0}},
	}
	written, err := idx.Upsert(ctx, types.CollectionCompanyCulture, entries)
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	results, err := idx.Query(ctx, types.CollectionCompanyCulture, []float64{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "a", results[0].DocumentID)
	assert.Equal(t, "c", results[1].DocumentID)
	assert.Equal(t, "b", results[2].DocumentID)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestInMemoryIndexUpsertOverwrites(t *testing.T) {
	t.Parallel()

	idx := NewInMemoryVectorIndex(nil)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, types.CollectionManagement, []types.IndexedEntry{
		{DocumentID: "a", Document: types.Document{Content: "v1"}, Embedding: []float64{1}},
	})
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, types.CollectionManagement, []types.IndexedEntry{
		{DocumentID: "a", Document: types.Document{Content: "v2"}, Embedding: []float64{1}},
	})
	require.NoError(t, err)

	count, err := idx.Count(ctx, types.CollectionManagement)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	docs, err := idx.Documents(ctx, types.CollectionManagement, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "v2", docs[0].Content)
}

func TestInMemoryIndexSkipsInvalidEntries(t *testing.T) {
	t.Parallel()

	idx := NewInMemoryVectorIndex(nil)
	written, err := idx.Upsert(context.Background(), types.CollectionManagement, []types.IndexedEntry{
		{DocumentID: "", Document: types.Document{Content: "no id"}, Embedding: []float64{1}},
		{DocumentID: "ok", Document: types.Document{Content: "fine"}, Embedding: []float64{1}},
		{DocumentID: "no-vec", Document: types.Document{Content: "missing vector"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, written)
}

func TestInMemoryIndexDocumentsPagination(t *testing.T) {
	t.Parallel()

	idx := NewInMemoryVectorIndex(nil)
	ctx := context.Background()
	seedIndex(t, idx, types.CollectionCareerGrowth, "one", "two", "three", "four", "five")

	page1, err := idx.Documents(ctx, types.CollectionCareerGrowth, nil, 2, 0)
	require.NoError(t, err)
	page2, err := idx.Documents(ctx, types.CollectionCareerGrowth, nil, 2, 2)
	require.NoError(t, err)
	page3, err := idx.Documents(ctx, types.CollectionCareerGrowth, nil, 2, 4)
	require.NoError(t, err)

	assert.Len(t, page1, 2)
	assert.Len(t, page2, 2)
	assert.Len(t, page3, 1)

	seen := map[string]bool{}
	for _, doc := range append(append(page1, page2...), page3...) {
		seen[doc.Content] = true
	}
	assert.Len(t, seen, 5, "pages must not overlap")
}

func TestInMemoryIndexQueryWithFilters(t *testing.T) {
	t.Parallel()

	idx := NewInMemoryVectorIndex(nil)
	ctx := context.Background()
	_, err := idx.Upsert(ctx, types.CollectionSalaryBenefits, []types.IndexedEntry{
		{DocumentID: "a", Document: types.Document{Content: "acme pay", Metadata: map[string]any{"company": "acme"}}, Embedding: []float64{1, 0}},
		{DocumentID: "b", Document: types.Document{Content: "other pay", Metadata: map[string]any{"company": "other"}}, Embedding: []float64{1, 0}},
	})
	require.NoError(t, err)

	results, err := idx.Query(ctx, types.CollectionSalaryBenefits, []float64{1, 0}, 10, map[string]any{"company": "acme"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].DocumentID)
}
