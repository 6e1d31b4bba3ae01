package supervisor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/internal/metrics"
	"github.com/wonjunchoi-arc/blind-sub000/llm"
	"github.com/wonjunchoi-arc/blind-sub000/rag"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// Worker 专家执行单元：对自己负责的主题集合检索并生成回答.
type Worker interface {
	Name() string
	Collection() string

	// Execute 处理任务描述，返回回答文本与支撑文档。
	// 回答为空串表示"没有答案"，不算错误。
	Execute(ctx context.Context, task string) (string, []types.SearchResult, error)
}

// TopicWorker 主题专家：绑定一个评论集合与角色设定.
type TopicWorker struct {
	name       string
	collection string
	persona    string
	store      *rag.KnowledgeStore
	generator  llm.Generator
	topK       int
	logger     *zap.Logger
	collector  *metrics.Collector
}

// NewTopicWorker 创建主题专家.
func NewTopicWorker(name, collection, persona string, store *rag.KnowledgeStore, generator llm.Generator, topK int, logger *zap.Logger, collector *metrics.Collector) *TopicWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topK <= 0 {
		topK = 10
	}
	return &TopicWorker{
		name:       name,
		collection: collection,
		persona:    persona,
		store:      store,
		generator:  generator,
		topK:       topK,
		logger:     logger.With(zap.String("component", "worker"), zap.String("worker", name)),
		collector:  collector,
	}
}

func (w *TopicWorker) Name() string       { return w.name }
func (w *TopicWorker) Collection() string { return w.collection }

// Execute 先检索自己的集合，再把证据交给生成器.
func (w *TopicWorker) Execute(ctx context.Context, task string) (string, []types.SearchResult, error) {
	start := time.Now()

	results, err := w.store.Search(ctx, task, []string{w.collection}, nil, w.topK)
	if err != nil {
		w.collector.WorkerExecution(w.name, "error", time.Since(start))
		return "", nil, fmt.Errorf("worker %s search: %w", w.name, err)
	}

	docs := make([]types.Document, 0, len(results))
	for _, res := range results {
		docs = append(docs, res.Document)
	}

	prompt := task
	if w.persona != "" {
		prompt = w.persona + "\n\n" + task
	}
	answer, err := w.generator.Generate(ctx, prompt, docs, llm.GenerateOptions{})
	if err != nil {
		w.collector.WorkerExecution(w.name, "error", time.Since(start))
		return "", results, fmt.Errorf("worker %s generate: %w", w.name, err)
	}

	w.collector.WorkerExecution(w.name, "ok", time.Since(start))
	w.logger.Debug("worker executed",
		zap.Int("evidence", len(results)),
		zap.Duration("elapsed", time.Since(start)))
	return strings.TrimSpace(answer), results, nil
}

// Registry worker 注册表；路由结果必须能在这里命中.
type Registry struct {
	workers map[string]Worker
}

// NewRegistry 创建空注册表.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

// Register 注册 worker；同名覆盖.
func (r *Registry) Register(w Worker) {
	r.workers[w.Name()] = w
}

// Get 按名字取 worker；未注册返回 ErrUnknownWorker.
func (r *Registry) Get(name string) (Worker, error) {
	w, ok := r.workers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownWorker, name)
	}
	return w, nil
}

// Names 返回已注册 worker 名（字典序，路由提示词用）.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// topicPersonas 五个主题专家的角色设定.
var topicPersonas = map[string]string{
	types.CollectionCompanyCulture: "You are a company culture analyst. Base every claim on the provided employee reviews and note recurring themes.",
	types.CollectionWorkLifeBalance: "You are a work-life balance analyst. Summarise working-hour patterns and flexibility signals from the provided reviews.",
	types.CollectionManagement:      "You are a management quality analyst. Assess leadership and communication based strictly on the provided reviews.",
	types.CollectionSalaryBenefits:  "You are a compensation analyst. Report salary and benefits observations grounded in the provided reviews.",
	types.CollectionCareerGrowth:    "You are a career growth analyst. Evaluate promotion and learning opportunities from the provided reviews.",
}

// workerNameFor 集合名到 worker 名的固定映射.
func workerNameFor(collection string) string {
	return collection + "_expert"
}

// NewTopicRegistry 为五个固定主题集合各注册一个专家.
func NewTopicRegistry(store *rag.KnowledgeStore, generator llm.Generator, topK int, logger *zap.Logger, collector *metrics.Collector) *Registry {
	registry := NewRegistry()
	for _, collection := range types.Collections() {
		registry.Register(NewTopicWorker(
			workerNameFor(collection),
			collection,
			topicPersonas[collection],
			store, generator, topK, logger, collector,
		))
	}
	return registry
}
