package rag

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/embedding"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// KnowledgeStore 知识库门面：摄取管线与唯一的检索入口。
//
// 专家 worker 不直接接触索引层，一律通过这里检索。
type KnowledgeStore struct {
	retriever *HybridRetriever
	vector    VectorIndex
	lexical   *LexicalCache
	chunker   *Chunker
	embedder  embedding.Provider
	lookup    *LookupStore
	logger    *zap.Logger
}

// KnowledgeStoreOption configures a KnowledgeStore.
type KnowledgeStoreOption func(*KnowledgeStore)

// WithLookupStore 挂接公司/职位/年份查找库.
func WithLookupStore(l *LookupStore) KnowledgeStoreOption {
	return func(s *KnowledgeStore) { s.lookup = l }
}

// NewKnowledgeStore 创建知识库.
func NewKnowledgeStore(retriever *HybridRetriever, vector VectorIndex, lexical *LexicalCache, chunker *Chunker, embedder embedding.Provider, logger *zap.Logger, opts ...KnowledgeStoreOption) *KnowledgeStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &KnowledgeStore{
		retriever: retriever,
		vector:    vector,
		lexical:   lexical,
		chunker:   chunker,
		embedder:  embedder,
		logger:    logger.With(zap.String("component", "knowledge_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddDocuments 摄取管线：分块 → 嵌入 → 写入向量索引。
// 返回实际写入的块数。部分失败降级：嵌入失败的块用零向量，
// 查找库更新失败只记日志.
func (s *KnowledgeStore) AddDocuments(ctx context.Context, collection string, docs []types.Document) (int, error) {
	if !types.IsValidCollection(collection) {
		return 0, types.NewValidationError("collection", "unknown collection: "+collection)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	start := time.Now()

	var chunks []types.Document
	for _, doc := range docs {
		chunks = append(chunks, s.chunker.Split(doc)...)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		// 嵌入层已经做过逐条回退；整体失败时全部用零向量
		s.logger.Warn("batch embedding failed, indexing with zero vectors", zap.Error(err))
		vectors = make([][]float64, len(chunks))
	}

	entries := make([]types.IndexedEntry, 0, len(chunks))
	for i, chunk := range chunks {
		vec := vectors[i]
		if vec == nil {
			vec = embedding.ZeroVector(s.embedder.Dimensions())
		}
		entries = append(entries, types.IndexedEntry{
			DocumentID: uuid.NewString(),
			Document:   chunk,
			Embedding:  vec,
		})
	}

	written, err := s.vector.Upsert(ctx, collection, entries)
	if err != nil {
		return written, err
	}

	// 新文档入库后旧的词法索引过期
	s.lexical.Clear()

	if s.lookup != nil {
		if err := s.lookup.Record(ctx, docs); err != nil {
			s.logger.Warn("lookup store update failed", zap.Error(err))
		}
	}

	s.logger.Info("documents ingested",
		zap.String("collection", collection),
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("written", written),
		zap.Duration("elapsed", time.Since(start)))
	return written, nil
}

// Search 跨集合检索。逐集合执行混合检索，按文档键去重
// （保留高分者），合并后按分数降序重编排名并截断到 topK.
func (s *KnowledgeStore) Search(ctx context.Context, query string, collections []string, filters map[string]any, topK int) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.ErrEmptyQuery
	}
	if len(collections) == 0 {
		collections = types.Collections()
	}

	best := make(map[string]types.SearchResult)
	firstSeen := make(map[string]int)
	order := 0

	for _, collection := range collections {
		results, err := s.retriever.Search(ctx, query, collection, filters, topK)
		if err != nil {
			if types.IsValidation(err) {
				return nil, err
			}
			s.logger.Warn("collection search failed, skipping",
				zap.String("collection", collection), zap.Error(err))
			continue
		}
		for _, res := range results {
			key := types.DocumentKey(res.Document)
			if prev, ok := best[key]; !ok || res.RelevanceScore > prev.RelevanceScore {
				if !ok {
					firstSeen[key] = order
					order++
				}
				best[key] = res
			}
		}
	}

	merged := make([]types.SearchResult, 0, len(best))
	keys := make([]string, 0, len(best))
	for key := range best {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := best[keys[i]], best[keys[j]]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		return firstSeen[keys[i]] < firstSeen[keys[j]]
	})
	for _, key := range keys {
		if topK > 0 && len(merged) == topK {
			break
		}
		res := best[key]
		res.Rank = len(merged) + 1
		merged = append(merged, res)
	}
	return merged, nil
}

// StoreStats 知识库运行统计.
type StoreStats struct {
	Collections map[string]int   `json:"collections"`
	Retriever   RetrieverStats   `json:"retriever"`
	Embedding   map[string]int64 `json:"embedding,omitempty"`
}

// Stats 汇总各集合文档数与检索统计.
func (s *KnowledgeStore) Stats(ctx context.Context) StoreStats {
	stats := StoreStats{Collections: make(map[string]int, len(types.Collections()))}
	for _, collection := range types.Collections() {
		count, err := s.vector.Count(ctx, collection)
		if err != nil {
			s.logger.Warn("count failed", zap.String("collection", collection), zap.Error(err))
			continue
		}
		stats.Collections[collection] = count
	}
	stats.Retriever = s.retriever.Stats()
	if cp, ok := s.embedder.(*embedding.CachingProvider); ok {
		size, hits, misses := cp.Stats()
		stats.Embedding = map[string]int64{
			"cache_size":   int64(size),
			"cache_hits":   hits,
			"cache_misses": misses,
		}
	}
	return stats
}
