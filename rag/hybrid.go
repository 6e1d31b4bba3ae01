package rag

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/config"
	"github.com/wonjunchoi-arc/blind-sub000/embedding"
	"github.com/wonjunchoi-arc/blind-sub000/internal/metrics"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// HybridRetriever 混合检索器：词法 + 向量并行检索，排名融合后
// 可选交叉编码重排，最后按相关性阈值过滤.
type HybridRetriever struct {
	vector    VectorIndex
	lexical   *LexicalCache
	embedder  embedding.Provider
	reranker  Reranker
	cfg       config.RetrievalConfig
	logger    *zap.Logger
	collector *metrics.Collector

	mu         sync.Mutex
	searches   int64
	avgLatency time.Duration
}

// HybridOption configures a HybridRetriever.
type HybridOption func(*HybridRetriever)

// WithReranker 启用交叉编码重排.
func WithReranker(r Reranker) HybridOption {
	return func(h *HybridRetriever) { h.reranker = r }
}

// WithHybridMetrics 挂接指标收集器.
func WithHybridMetrics(m *metrics.Collector) HybridOption {
	return func(h *HybridRetriever) { h.collector = m }
}

// NewHybridRetriever 创建混合检索器.
func NewHybridRetriever(vector VectorIndex, lexical *LexicalCache, embedder embedding.Provider, cfg config.RetrievalConfig, logger *zap.Logger, opts ...HybridOption) *HybridRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &HybridRetriever{
		vector:   vector,
		lexical:  lexical,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "hybrid_retriever")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RetrieverStats 检索器运行统计.
type RetrieverStats struct {
	Searches       int64         `json:"searches"`
	AverageLatency time.Duration `json:"average_latency"`
}

// Stats 返回累计检索次数与平均延迟.
func (h *HybridRetriever) Stats() RetrieverStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return RetrieverStats{Searches: h.searches, AverageLatency: h.avgLatency}
}

// Search 以默认的 ensemble 方式在单个集合上检索.
func (h *HybridRetriever) Search(ctx context.Context, query, collection string, filters map[string]any, topK int) ([]types.SearchResult, error) {
	return h.SearchWithMethod(ctx, query, collection, filters, topK, types.RetrievalEnsemble)
}

// SearchWithMethod 在单个集合上按调用方指定的方式检索。
//
// ensemble：校验 → 查询向量化 → 并行词法/向量检索 → 排名融合 →
// 可选重排 → 阈值过滤与排名压缩。任何单阶段失败降级而不中断：
// 向量分支空结果退化为纯词法（按排名归一分数），重排失败保持融合序。
// semantic：只走向量分支，取 2 倍候选，距离转相似度后直接进入
// 重排与过滤.
func (h *HybridRetriever) SearchWithMethod(ctx context.Context, query, collection string, filters map[string]any, topK int, method types.RetrievalMethod) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.ErrEmptyQuery
	}
	if !types.IsValidCollection(collection) {
		return nil, types.NewValidationError("collection", "unknown collection: "+collection)
	}
	if method != types.RetrievalEnsemble && method != types.RetrievalSemantic {
		return nil, types.NewValidationError("method", "unsupported retrieval method: "+string(method))
	}
	if topK <= 0 {
		topK = h.cfg.TopK
	}

	start := time.Now()

	// 嵌入失败降级为零向量，由嵌入层处理；这里不会收到错误
	queryVector, err := h.embedder.EmbedQuery(ctx, query)
	if err != nil {
		h.logger.Warn("query embedding failed, using zero vector", zap.Error(err))
		queryVector = embedding.ZeroVector(h.embedder.Dimensions())
	}

	var fused []types.SearchResult
	switch method {
	case types.RetrievalSemantic:
		vectorResults := h.searchVector(ctx, collection, queryVector, filters, topK*2)
		fused = truncateAndRank(vectorResults, topK*2)
	default:
		fused, method = h.searchEnsemble(ctx, query, queryVector, collection, filters, topK)
	}

	if h.cfg.UseReranking && h.reranker != nil && len(fused) > 0 {
		reranked, err := h.reranker.Rerank(ctx, query, fused)
		if err != nil {
			h.logger.Warn("rerank failed, keeping fused order", zap.Error(err))
		} else {
			fused = reranked
			method = fused[0].RetrievalMethod
		}
	}

	final := FilterByRelevance(fused, h.cfg.RelevanceThreshold)

	elapsed := time.Since(start)
	h.recordLatency(elapsed)
	h.collector.ObserveSearch(collection, string(method), elapsed, len(final))
	h.logger.Debug("search completed",
		zap.String("collection", collection),
		zap.String("method", string(method)),
		zap.Int("candidates", len(fused)),
		zap.Int("final", len(final)),
		zap.Duration("elapsed", elapsed))
	return final, nil
}

// searchEnsemble 并行双分支检索后做排名融合，返回结果和实际生效
// 的检索方式（降级路径会改写方式标签）.
func (h *HybridRetriever) searchEnsemble(ctx context.Context, query string, queryVector []float64, collection string, filters map[string]any, topK int) ([]types.SearchResult, types.RetrievalMethod) {
	// 每个分支取 2 倍候选，融合后再截到 topK
	lexicalResults, vectorResults := h.searchBranches(ctx, query, queryVector, collection, filters, topK*2)

	switch {
	case len(vectorResults) == 0 && len(lexicalResults) == 0:
		return nil, types.RetrievalEnsemble
	case len(vectorResults) == 0:
		// 向量后端不可用：纯词法降级。BM25 原始分数无上界，
		// 用排名倒数归一到 [0,1] 再交给阈值过滤
		h.logger.Warn("vector branch empty, degrading to lexical-only",
			zap.String("collection", collection))
		return rankNormalize(lexicalResults, topK, types.RetrievalLexical), types.RetrievalLexical
	case len(lexicalResults) == 0:
		return truncateAndRank(vectorResults, topK), types.RetrievalEnsemble
	}

	fused := fuseRankings(lexicalResults, vectorResults,
		h.cfg.BM25Weight, h.cfg.VectorWeight, h.cfg.OverlapBonus, topK)
	if len(fused) == 0 {
		// 融合退化：保留语义序
		h.logger.Warn("fusion produced no results, degrading to semantic-only",
			zap.String("collection", collection))
		return truncateAndRank(vectorResults, topK), types.RetrievalSemantic
	}
	return fused, types.RetrievalEnsemble
}

// searchBranches 并行执行词法与向量检索；任一分支失败记日志并返回空.
func (h *HybridRetriever) searchBranches(ctx context.Context, query string, queryVector []float64, collection string, filters map[string]any, topK int) (lexical, vector []types.SearchResult) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		idx, err := h.lexical.Get(ctx, collection, filters)
		if err != nil {
			h.logger.Warn("lexical index unavailable",
				zap.String("collection", collection), zap.Error(err))
			return
		}
		lexical = idx.Search(query, topK)
	}()

	go func() {
		defer wg.Done()
		vector = h.searchVector(ctx, collection, queryVector, filters, topK)
	}()

	wg.Wait()
	return lexical, vector
}

// searchVector 执行向量分支：查询失败降级为空结果.
func (h *HybridRetriever) searchVector(ctx context.Context, collection string, queryVector []float64, filters map[string]any, k int) []types.SearchResult {
	scored, err := h.vector.Query(ctx, collection, queryVector, k, filters)
	if err != nil {
		h.logger.Warn("vector query failed",
			zap.String("collection", collection), zap.Error(err))
		return nil
	}
	out := make([]types.SearchResult, 0, len(scored))
	for i, s := range scored {
		out = append(out, types.SearchResult{
			Document:        s.Document,
			RelevanceScore:  DistanceToSimilarity(s.Distance),
			Rank:            i + 1,
			RetrievalMethod: types.RetrievalSemantic,
		})
	}
	return out
}

// fuseRankings 按排名位次加权融合两个有序列表。
//
// 每个文档的贡献为 weight × 1/(rank+1)，rank 从 0 起。同一文档
// 出现在两个列表时贡献相加；两个列表的前十名都包含它时整体分数
// 乘以重叠加成，最终截断到 1.0。同分文档按首次出现顺序排序.
func fuseRankings(lexical, vector []types.SearchResult, lexicalWeight, vectorWeight, overlapBonus float64, topK int) []types.SearchResult {
	type fusedEntry struct {
		result    types.SearchResult
		score     float64
		firstSeen int
		inLexTop  bool
		inVecTop  bool
	}

	entries := make(map[string]*fusedEntry)
	order := 0

	accumulate := func(results []types.SearchResult, weight float64, markLex bool) {
		for i, res := range results {
			key := types.DocumentKey(res.Document)
			entry, ok := entries[key]
			if !ok {
				entry = &fusedEntry{result: res, firstSeen: order}
				order++
				entries[key] = entry
			}
			entry.score += weight / float64(i+1)
			if i < 10 {
				if markLex {
					entry.inLexTop = true
				} else {
					entry.inVecTop = true
				}
			}
		}
	}
	accumulate(lexical, lexicalWeight, true)
	accumulate(vector, vectorWeight, false)

	fused := make([]*fusedEntry, 0, len(entries))
	for _, e := range entries {
		if e.inLexTop && e.inVecTop {
			e.score *= overlapBonus
		}
		if e.score > 1.0 {
			e.score = 1.0
		}
		fused = append(fused, e)
	}

	// 分数降序，同分按首次出现顺序
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].score != fused[j].score {
			return fused[i].score > fused[j].score
		}
		return fused[i].firstSeen < fused[j].firstSeen
	})

	if len(fused) > topK {
		fused = fused[:topK]
	}

	out := make([]types.SearchResult, 0, len(fused))
	for i, e := range fused {
		res := e.result
		res.RelevanceScore = e.score
		res.Rank = i + 1
		res.RetrievalMethod = types.RetrievalEnsemble
		out = append(out, res)
	}
	return out
}

// FilterByRelevance 去掉低于阈值的结果并把排名压缩为连续的 1..n.
func FilterByRelevance(results []types.SearchResult, threshold float64) []types.SearchResult {
	out := make([]types.SearchResult, 0, len(results))
	for _, res := range results {
		if res.RelevanceScore < threshold {
			continue
		}
		res.Rank = len(out) + 1
		out = append(out, res)
	}
	return out
}

// rankNormalize 截断到 topK，用排名倒数 1/(rank+1) 作为 [0,1] 内
// 的相关性分。纯词法降级时替换量纲不同的原始 BM25 分.
func rankNormalize(results []types.SearchResult, topK int, method types.RetrievalMethod) []types.SearchResult {
	if len(results) > topK {
		results = results[:topK]
	}
	out := make([]types.SearchResult, len(results))
	for i, res := range results {
		res.RelevanceScore = 1 / float64(i+1)
		res.Rank = i + 1
		res.RetrievalMethod = method
		out[i] = res
	}
	return out
}

// truncateAndRank 截断到 topK 并重编 1..n 排名.
func truncateAndRank(results []types.SearchResult, topK int) []types.SearchResult {
	if len(results) > topK {
		results = results[:topK]
	}
	out := make([]types.SearchResult, len(results))
	for i, res := range results {
		res.Rank = i + 1
		out[i] = res
	}
	return out
}

func (h *HybridRetriever) recordLatency(elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.searches++
	// 运行平均：avg += (x - avg) / n
	h.avgLatency += (elapsed - h.avgLatency) / time.Duration(h.searches)
}
