// Package blindinsight 组装公司评论分析平台的检索与编排核心。
//
// 这里只做装配：根据配置构建嵌入、索引、混合检索、知识库与
// 编排状态机，并把它们连成一个可用的 App。各子系统的行为见
// rag 与 supervisor 包。
package blindinsight

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/config"
	"github.com/wonjunchoi-arc/blind-sub000/embedding"
	"github.com/wonjunchoi-arc/blind-sub000/internal/metrics"
	"github.com/wonjunchoi-arc/blind-sub000/llm"
	"github.com/wonjunchoi-arc/blind-sub000/rag"
	"github.com/wonjunchoi-arc/blind-sub000/supervisor"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// App 平台核心的聚合入口.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *rag.KnowledgeStore
	controller *supervisor.Controller
	lookup     *rag.LookupStore
}

// New 按配置装配整个平台核心.
func New(cfg *config.Config, logger *zap.Logger, registerer prometheus.Registerer) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	collector := metrics.NewCollector("blindinsight", registerer, logger)

	base := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		MaxBatch:   cfg.Embedding.MaxBatch,
		Timeout:    cfg.Embedding.Timeout,
	})
	embedder := embedding.NewCachingProvider(base, logger)

	var vector rag.VectorIndex
	if cfg.Chroma.Enabled {
		chromaIdx, err := rag.NewChromaVectorIndex(cfg.Chroma.URL, logger,
			rag.WithUpsertBatchSize(cfg.Retrieval.UpsertBatchSize),
			rag.WithChromaMetrics(collector),
		)
		if err != nil {
			return nil, fmt.Errorf("chroma index: %w", err)
		}
		vector = chromaIdx
	} else {
		vector = rag.NewInMemoryVectorIndex(logger)
	}

	lexical := rag.NewLexicalCache(vector, logger,
		rag.WithLexicalTTL(cfg.Retrieval.LexicalCacheTTL),
		rag.WithLexicalPageSize(cfg.Retrieval.LexicalPageSize),
		rag.WithLexicalMetrics(collector),
	)

	hybridOpts := []rag.HybridOption{rag.WithHybridMetrics(collector)}
	if cfg.Retrieval.UseReranking && cfg.Rerank.BaseURL != "" {
		hybridOpts = append(hybridOpts, rag.WithReranker(rag.NewHTTPReranker(rag.RerankConfig{
			BaseURL: cfg.Rerank.BaseURL,
			APIKey:  cfg.Rerank.APIKey,
			Model:   cfg.Rerank.Model,
			Timeout: cfg.Rerank.Timeout,
		}, logger)))
	}
	retriever := rag.NewHybridRetriever(vector, lexical, embedder, cfg.Retrieval, logger, hybridOpts...)

	generator := llm.NewOpenAIGenerator(llm.OpenAIConfig{
		BaseURL:     cfg.Generation.BaseURL,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Timeout:     cfg.Generation.Timeout,
	}, logger)

	var lookup *rag.LookupStore
	var storeOpts []rag.KnowledgeStoreOption
	if cfg.Lookup.Path != "" {
		l, err := rag.NewLookupStore(cfg.Lookup.Path, logger)
		if err != nil {
			// 查找库是辅助设施，打不开不挡主流程
			logger.Warn("lookup store unavailable", zap.Error(err))
		} else {
			lookup = l
			storeOpts = append(storeOpts, rag.WithLookupStore(l))
		}
	}

	store := rag.NewKnowledgeStore(retriever, vector, lexical,
		rag.NewChunker(logger), embedder, logger, storeOpts...)

	registry := supervisor.NewTopicRegistry(store, generator, cfg.Retrieval.TopK, logger, collector)
	controller := supervisor.NewController(
		registry,
		supervisor.NewLLMRouter(generator, logger),
		supervisor.NewLLMEvaluator(generator, logger),
		cfg.Supervisor,
		logger,
		supervisor.WithControllerMetrics(collector),
	)

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		controller: controller,
		lookup:     lookup,
	}, nil
}

// Ask 处理一个问题，走完整的路由-执行-评估回路.
func (a *App) Ask(ctx context.Context, question, sessionID string) (*supervisor.RunResult, error) {
	return a.controller.Run(ctx, question, sessionID)
}

// Ingest 把评论文档摄取进指定主题集合.
func (a *App) Ingest(ctx context.Context, collection string, docs []types.Document) (int, error) {
	return a.store.AddDocuments(ctx, collection, docs)
}

// Search 直接检索知识库，不经过编排.
func (a *App) Search(ctx context.Context, query string, collections []string, filters map[string]any, topK int) ([]types.SearchResult, error) {
	return a.store.Search(ctx, query, collections, filters, topK)
}

// Stats 返回知识库运行统计.
func (a *App) Stats(ctx context.Context) rag.StoreStats {
	return a.store.Stats(ctx)
}

// History 返回会话检查点历史.
func (a *App) History(ctx context.Context, sessionID string) ([]*supervisor.State, error) {
	return a.controller.History(ctx, sessionID)
}

// Close 释放持久化资源.
func (a *App) Close() error {
	if a.lookup != nil {
		return a.lookup.Close()
	}
	return nil
}
