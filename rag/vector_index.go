package rag

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// ScoredDocument 向量检索结果：文档 + 原始余弦距离（越小越近）.
type ScoredDocument struct {
	DocumentID string
	Document   types.Document
	Distance   float64
}

// VectorIndex 向量数据库接口
//
// 实现方自行保证跨进程并发安全；本层只做批量切分，不加额外锁。
type VectorIndex interface {
	// Upsert 批量写入。内部按子批切分以适配后端限制；
	// 子批失败回退为逐条写入，返回实际写入条数，部分失败不报错。
	Upsert(ctx context.Context, collection string, entries []types.IndexedEntry) (int, error)

	// Query 近邻查询。filters 是等值匹配的合取（仅 AND 语义）。
	// 按距离升序返回至多 k 条。后端不可用时返回空列表并记日志，不抛错。
	Query(ctx context.Context, collection string, vector []float64, k int, filters map[string]any) ([]ScoredDocument, error)

	// Documents 分页列出集合中满足过滤条件的文档（词法索引构建用）。
	Documents(ctx context.Context, collection string, filters map[string]any, limit, offset int) ([]types.Document, error)

	// Count 返回集合内文档数.
	Count(ctx context.Context, collection string) (int, error)
}

// DistanceToSimilarity converts a cosine distance in [0,2] to a relevance
// score in [0,1]: similarity = max(0, 1 - distance/2).
func DistanceToSimilarity(distance float64) float64 {
	return math.Max(0, 1-distance/2)
}

// MatchesFilters reports whether the document metadata satisfies every
// filter pair (AND semantics, exact equality).
func MatchesFilters(doc types.Document, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := doc.Metadata[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// ====== 内存向量索引（用于测试和小规模应用）======

// InMemoryVectorIndex 内存向量索引
type InMemoryVectorIndex struct {
	mu          sync.RWMutex
	collections map[string]map[string]types.IndexedEntry
	logger      *zap.Logger
}

// NewInMemoryVectorIndex 创建内存向量索引
func NewInMemoryVectorIndex(logger *zap.Logger) *InMemoryVectorIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryVectorIndex{
		collections: make(map[string]map[string]types.IndexedEntry),
		logger:      logger.With(zap.String("component", "memory_vector_index")),
	}
}

// Upsert 写入条目；同 ID 覆盖.
func (idx *InMemoryVectorIndex) Upsert(ctx context.Context, collection string, entries []types.IndexedEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	coll, ok := idx.collections[collection]
	if !ok {
		coll = make(map[string]types.IndexedEntry)
		idx.collections[collection] = coll
	}

	written := 0
	for _, entry := range entries {
		if entry.DocumentID == "" || entry.Embedding == nil {
			continue
		}
		coll[entry.DocumentID] = entry
		written++
	}

	idx.logger.Debug("entries upserted",
		zap.String("collection", collection),
		zap.Int("written", written))
	return written, nil
}

// Query 余弦距离升序近邻查询.
func (idx *InMemoryVectorIndex) Query(ctx context.Context, collection string, vector []float64, k int, filters map[string]any) ([]ScoredDocument, error) {
	if k <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	coll := idx.collections[collection]
	if len(coll) == 0 {
		return nil, nil
	}

	// 稳定遍历顺序，保证等距离时的确定性排序
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([]ScoredDocument, 0, len(ids))
	for _, id := range ids {
		entry := coll[id]
		if !MatchesFilters(entry.Document, filters) {
			continue
		}
		results = append(results, ScoredDocument{
			DocumentID: id,
			Document:   entry.Document,
			Distance:   1 - cosineSimilarity(vector, entry.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Documents 分页列出满足过滤条件的文档.
func (idx *InMemoryVectorIndex) Documents(ctx context.Context, collection string, filters map[string]any, limit, offset int) ([]types.Document, error) {
	if limit <= 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	coll := idx.collections[collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	matched := make([]types.Document, 0, limit)
	skipped := 0
	for _, id := range ids {
		doc := coll[id].Document
		if !MatchesFilters(doc, filters) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		matched = append(matched, doc)
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}

// Count 返回集合文档数.
func (idx *InMemoryVectorIndex) Count(ctx context.Context, collection string) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.collections[collection]), nil
}

// cosineSimilarity 计算余弦相似度；维度不符或零范数返回 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
