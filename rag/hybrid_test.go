package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/wonjunchoi-arc/blind-sub000/config"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// fakeEmbedder 确定性嵌入：按内容哈希生成向量，测试无外部依赖.
type fakeEmbedder struct {
	dims int
	fail bool
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	return f.vector(query), nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float64, len(documents))
	for i, doc := range documents {
		out[i] = f.vector(doc)
	}
	return out, nil
}

func (f *fakeEmbedder) Name() string      { return "fake" }
func (f *fakeEmbedder) Dimensions() int   { return f.dims }
func (f *fakeEmbedder) MaxBatchSize() int { return 100 }

func (f *fakeEmbedder) vector(text string) []float64 {
	v := make([]float64, f.dims)
	for i, r := range text {
		v[i%f.dims] += float64(r%13) / 13
	}
	return v
}

// failingVectorIndex 向量后端全面故障的替身.
type failingVectorIndex struct{}

func (failingVectorIndex) Upsert(ctx context.Context, collection string, entries []types.IndexedEntry) (int, error) {
	return 0, errors.New("backend down")
}

func (failingVectorIndex) Query(ctx context.Context, collection string, vector []float64, k int, filters map[string]any) ([]ScoredDocument, error) {
	return nil, errors.New("backend down")
}

func (failingVectorIndex) Documents(ctx context.Context, collection string, filters map[string]any, limit, offset int) ([]types.Document, error) {
	return nil, errors.New("backend down")
}

func (failingVectorIndex) Count(ctx context.Context, collection string) (int, error) {
	return 0, errors.New("backend down")
}

func testRetrievalConfig() config.RetrievalConfig {
	return config.Default().Retrieval
}

func seedIndex(t *testing.T, idx VectorIndex, collection string, contents ...string) {
	t.Helper()
	embedder := &fakeEmbedder{dims: 8}
	entries := make([]types.IndexedEntry, 0, len(contents))
	for i, content := range contents {
		entries = append(entries, types.IndexedEntry{
			DocumentID: fmt.Sprintf("doc-%d", i),
			Document:   types.Document{Content: content, Metadata: map[string]any{"company": "acme"}},
			Embedding:  embedder.vector(content),
		})
	}
	_, err := idx.Upsert(context.Background(), collection, entries)
	require.NoError(t, err)
}

func newTestRetriever(t *testing.T, vector VectorIndex) *HybridRetriever {
	t.Helper()
	logger := zap.NewNop()
	lexical := NewLexicalCache(vector, logger)
	return NewHybridRetriever(vector, lexical, &fakeEmbedder{dims: 8}, testRetrievalConfig(), logger)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	retriever := newTestRetriever(t, NewInMemoryVectorIndex(nil))
	_, err := retriever.Search(context.Background(), "   ", types.CollectionManagement, nil, 5)
	if !errors.Is(err, types.ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestSearchRejectsUnknownCollection(t *testing.T) {
	t.Parallel()

	retriever := newTestRetriever(t, NewInMemoryVectorIndex(nil))
	_, err := retriever.Search(context.Background(), "pay", "random_collection", nil, 5)
	if !types.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSearchIsDeterministic(t *testing.T) {
	t.Parallel()

	idx := NewInMemoryVectorIndex(nil)
	seedIndex(t, idx, types.CollectionCompanyCulture,
		"great culture with strong mentorship",
		"culture is toxic and political",
		"decent culture overall",
		"mentorship program changed my career",
	)
	retriever := newTestRetriever(t, idx)

	first, err := retriever.Search(context.Background(), "mentorship culture", types.CollectionCompanyCulture, nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	for i := 0; i < 5; i++ {
		again, err := retriever.Search(context.Background(), "mentorship culture", types.CollectionCompanyCulture, nil, 10)
		require.NoError(t, err)
		assert.Equal(t, first, again, "run %d diverged", i)
	}
}

func TestSearchRanksAreContiguous(t *testing.T) {
	t.Parallel()

	idx := NewInMemoryVectorIndex(nil)
	seedIndex(t, idx, types.CollectionSalaryBenefits,
		"salary is above market rate",
		"benefits include great insurance",
		"pay raises are rare",
		"bonus structure is opaque",
	)
	retriever := newTestRetriever(t, idx)

	results, err := retriever.Search(context.Background(), "salary pay bonus", types.CollectionSalaryBenefits, nil, 10)
	require.NoError(t, err)

	for i, res := range results {
		if res.Rank != i+1 {
			t.Fatalf("rank at position %d is %d, want %d", i, res.Rank, i+1)
		}
		if res.RelevanceScore < testRetrievalConfig().RelevanceThreshold {
			t.Fatalf("result below relevance threshold survived: %v", res.RelevanceScore)
		}
	}
}

// 向量后端整体故障时检索退化为纯词法，不 panic 也不报错.
func TestSearchDegradesToLexicalOnVectorFailure(t *testing.T) {
	t.Parallel()

	retriever := newTestRetriever(t, failingVectorIndex{})
	_, err := retriever.Search(context.Background(), "salary", types.CollectionSalaryBenefits, nil, 5)
	require.NoError(t, err)
}

// queryFailingIndex 只有向量查询故障，文档分页仍可用——
// 词法索引建得起来，触发纯词法降级路径.
type queryFailingIndex struct{ VectorIndex }

func (queryFailingIndex) Query(ctx context.Context, collection string, vector []float64, k int, filters map[string]any) ([]ScoredDocument, error) {
	return nil, errors.New("vector backend down")
}

// 纯词法降级输出也必须满足分数在 [0,1]、排名连续、方式标为 lexical.
func TestSearchLexicalDegradeNormalizesScores(t *testing.T) {
	t.Parallel()

	idx := NewInMemoryVectorIndex(nil)
	seedIndex(t, idx, types.CollectionSalaryBenefits,
		"salary is above market rate",
		"salary raises are rare here",
		"benefits include generous insurance",
	)
	retriever := newTestRetriever(t, queryFailingIndex{idx})

	results, err := retriever.Search(context.Background(), "salary", types.CollectionSalaryBenefits, nil, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for i, res := range results {
		assert.GreaterOrEqual(t, res.RelevanceScore, 0.0)
		assert.LessOrEqual(t, res.RelevanceScore, 1.0)
		assert.Equal(t, i+1, res.Rank)
		assert.Equal(t, types.RetrievalLexical, res.RetrievalMethod)
	}
}

// semantic 方式只走向量分支：不建词法索引，结果全部标为 semantic.
func TestSearchWithMethodSemantic(t *testing.T) {
	t.Parallel()

	idx := NewInMemoryVectorIndex(nil)
	seedIndex(t, idx, types.CollectionCompanyCulture,
		"great culture with strong mentorship",
		"culture is toxic and political",
		"decent culture overall",
	)
	logger := zap.NewNop()
	lexical := NewLexicalCache(idx, logger)
	retriever := NewHybridRetriever(idx, lexical, &fakeEmbedder{dims: 8}, testRetrievalConfig(), logger)

	results, err := retriever.SearchWithMethod(context.Background(),
		"mentorship culture", types.CollectionCompanyCulture, nil, 3, types.RetrievalSemantic)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, res := range results {
		assert.Equal(t, types.RetrievalSemantic, res.RetrievalMethod)
		assert.GreaterOrEqual(t, res.RelevanceScore, 0.0)
		assert.LessOrEqual(t, res.RelevanceScore, 1.0)
	}
	assert.Zero(t, lexical.Builds(), "semantic path must not build lexical indexes")
}

func TestSearchWithMethodRejectsUnknownMethod(t *testing.T) {
	t.Parallel()

	retriever := newTestRetriever(t, NewInMemoryVectorIndex(nil))
	_, err := retriever.SearchWithMethod(context.Background(),
		"pay", types.CollectionManagement, nil, 5, types.RetrievalMethod("keyword"))
	require.True(t, types.IsValidation(err))
}

func TestSearchDegradesToZeroVectorOnEmbeddingFailure(t *testing.T) {
	t.Parallel()

	idx := NewInMemoryVectorIndex(nil)
	seedIndex(t, idx, types.CollectionManagement, "managers communicate openly", "leadership is distant")

	logger := zap.NewNop()
	lexical := NewLexicalCache(idx, logger)
	retriever := NewHybridRetriever(idx, lexical, &fakeEmbedder{dims: 8, fail: true}, testRetrievalConfig(), logger)

	results, err := retriever.Search(context.Background(), "managers communicate", types.CollectionManagement, nil, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results, "lexical branch should still return evidence")
}

func TestFuseRankingsWeightsAndOverlapBonus(t *testing.T) {
	t.Parallel()

	shared := types.SearchResult{Document: types.Document{Content: "shared evidence"}}
	lexOnly := types.SearchResult{Document: types.Document{Content: "lexical only evidence"}}
	vecOnly := types.SearchResult{Document: types.Document{Content: "vector only evidence"}}

	lexical := []types.SearchResult{shared, lexOnly}
	vector := []types.SearchResult{vecOnly, shared}

	fused := fuseRankings(lexical, vector, 0.5, 0.5, 1.2, 10)
	require.Len(t, fused, 3)

	scores := make(map[string]float64, len(fused))
	for _, res := range fused {
		scores[res.Document.Content] = res.RelevanceScore
	}

	// shared: (0.5×1/1 + 0.5×1/2) × 1.2 = 0.9
	assert.InDelta(t, 0.9, scores["shared evidence"], 1e-9)
	// lexOnly: 0.5×1/2 = 0.25, vecOnly: 0.5×1/1 = 0.5
	assert.InDelta(t, 0.25, scores["lexical only evidence"], 1e-9)
	assert.InDelta(t, 0.5, scores["vector only evidence"], 1e-9)

	assert.Equal(t, "shared evidence", fused[0].Document.Content)
	assert.Equal(t, types.RetrievalEnsemble, fused[0].RetrievalMethod)
}

func TestFuseRankingsClipsToOne(t *testing.T) {
	t.Parallel()

	doc := types.SearchResult{Document: types.Document{Content: "top evidence"}}
	fused := fuseRankings([]types.SearchResult{doc}, []types.SearchResult{doc}, 0.9, 0.9, 1.2, 10)
	require.Len(t, fused, 1)
	assert.Equal(t, 1.0, fused[0].RelevanceScore)
}

func TestFuseRankingsTieBreaksByFirstSeen(t *testing.T) {
	t.Parallel()

	a := types.SearchResult{Document: types.Document{Content: "alpha evidence"}}
	b := types.SearchResult{Document: types.Document{Content: "beta evidence"}}

	// 同分：a 在词法第一，b 在向量第一
	fused := fuseRankings([]types.SearchResult{a}, []types.SearchResult{b}, 0.5, 0.5, 1.2, 10)
	require.Len(t, fused, 2)
	assert.Equal(t, "alpha evidence", fused[0].Document.Content)
	assert.Equal(t, "beta evidence", fused[1].Document.Content)
}

func TestFilterByRelevance(t *testing.T) {
	t.Parallel()

	results := []types.SearchResult{
		{Document: types.Document{Content: "a"}, RelevanceScore: 0.9, Rank: 1},
		{Document: types.Document{Content: "b"}, RelevanceScore: 0.02, Rank: 2},
		{Document: types.Document{Content: "c"}, RelevanceScore: 0.3, Rank: 3},
	}
	filtered := FilterByRelevance(results, 0.05)
	require.Len(t, filtered, 2)
	assert.Equal(t, 1, filtered[0].Rank)
	assert.Equal(t, 2, filtered[1].Rank)
	assert.Equal(t, "c", filtered[1].Document.Content)
}

func TestFuseRankingsProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		nLex := rapid.IntRange(0, 15).Draw(t, "nLex")
		nVec := rapid.IntRange(0, 15).Draw(t, "nVec")

		mk := func(prefix string, n int) []types.SearchResult {
			out := make([]types.SearchResult, n)
			for i := range out {
				out[i] = types.SearchResult{
					Document: types.Document{Content: fmt.Sprintf("%s document %d", prefix, i)},
				}
			}
			return out
		}
		// 一部分文档在两个列表里重叠
		lexical := mk("shared", nLex)
		vector := mk("shared", nVec/2)
		vector = append(vector, mk("vector", nVec-nVec/2)...)

		fused := fuseRankings(lexical, vector, 0.5, 0.5, 1.2, 10)

		for i, res := range fused {
			if res.RelevanceScore < 0 || res.RelevanceScore > 1 {
				t.Fatalf("score out of [0,1]: %v", res.RelevanceScore)
			}
			if res.Rank != i+1 {
				t.Fatalf("rank not contiguous at %d: %d", i, res.Rank)
			}
			if i > 0 && fused[i-1].RelevanceScore < res.RelevanceScore {
				t.Fatalf("scores not descending at %d", i)
			}
		}
		if len(fused) > 10 {
			t.Fatalf("fused exceeds topK: %d", len(fused))
		}
	})
}
