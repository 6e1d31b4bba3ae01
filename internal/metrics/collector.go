// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Collector 指标收集器
type Collector struct {
	// 检索指标
	searchDuration *prometheus.HistogramVec
	searchResults  *prometheus.HistogramVec

	// 词法索引指标
	lexicalBuilds      *prometheus.CounterVec
	lexicalCacheHits   *prometheus.CounterVec
	lexicalCacheMisses *prometheus.CounterVec

	// 向量写入指标
	upsertEntries      *prometheus.CounterVec
	upsertDegradations *prometheus.CounterVec

	// 编排指标
	workerExecutions *prometheus.CounterVec
	workerDuration   *prometheus.HistogramVec
	retries          *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到给定的 registerer.
// registerer 为 nil 时使用 prometheus.DefaultRegisterer.
func NewCollector(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	factory := func(cv prometheus.Collector) {
		if err := registerer.Register(cv); err != nil {
			c.logger.Warn("metric registration failed", zap.Error(err))
		}
	}

	c.searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Hybrid search duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"collection", "method"},
	)
	factory(c.searchDuration)

	c.searchResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results_count",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"collection", "method"},
	)
	factory(c.searchResults)

	c.lexicalBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lexical_index_builds_total",
			Help:      "Total number of BM25 index builds",
		},
		[]string{"collection"},
	)
	factory(c.lexicalBuilds)

	c.lexicalCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lexical_cache_hits_total",
			Help:      "Total number of lexical cache hits",
		},
		[]string{"collection"},
	)
	factory(c.lexicalCacheHits)

	c.lexicalCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lexical_cache_misses_total",
			Help:      "Total number of lexical cache misses",
		},
		[]string{"collection"},
	)
	factory(c.lexicalCacheMisses)

	c.upsertEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_upsert_entries_total",
			Help:      "Total number of entries written to the vector index",
		},
		[]string{"collection"},
	)
	factory(c.upsertEntries)

	c.upsertDegradations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_upsert_degradations_total",
			Help:      "Total number of sub-batch failures that fell back to per-entry writes",
		},
		[]string{"collection"},
	)
	factory(c.upsertDegradations)

	c.workerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_executions_total",
			Help:      "Total number of specialist worker executions",
		},
		[]string{"worker", "status"},
	)
	factory(c.workerExecutions)

	c.workerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_duration_seconds",
			Help:      "Specialist worker execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"worker"},
	)
	factory(c.workerDuration)

	c.retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervisor_retries_total",
			Help:      "Total number of quality-driven worker retries",
		},
		[]string{"worker"},
	)
	factory(c.retries)

	return c
}

// ObserveSearch 记录一次检索的耗时与结果数.
func (c *Collector) ObserveSearch(collection, method string, duration time.Duration, results int) {
	if c == nil {
		return
	}
	c.searchDuration.WithLabelValues(collection, method).Observe(duration.Seconds())
	c.searchResults.WithLabelValues(collection, method).Observe(float64(results))
}

// LexicalBuild 记录一次 BM25 索引构建.
func (c *Collector) LexicalBuild(collection string) {
	if c == nil {
		return
	}
	c.lexicalBuilds.WithLabelValues(collection).Inc()
}

// LexicalCacheHit 记录词法缓存命中.
func (c *Collector) LexicalCacheHit(collection string) {
	if c == nil {
		return
	}
	c.lexicalCacheHits.WithLabelValues(collection).Inc()
}

// LexicalCacheMiss 记录词法缓存未命中.
func (c *Collector) LexicalCacheMiss(collection string) {
	if c == nil {
		return
	}
	c.lexicalCacheMisses.WithLabelValues(collection).Inc()
}

// UpsertWritten 记录成功写入的向量条目数.
func (c *Collector) UpsertWritten(collection string, count int) {
	if c == nil {
		return
	}
	c.upsertEntries.WithLabelValues(collection).Add(float64(count))
}

// UpsertDegraded 记录一次子批失败回退.
func (c *Collector) UpsertDegraded(collection string) {
	if c == nil {
		return
	}
	c.upsertDegradations.WithLabelValues(collection).Inc()
}

// WorkerExecution 记录一次 worker 执行.
func (c *Collector) WorkerExecution(worker, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.workerExecutions.WithLabelValues(worker, status).Inc()
	c.workerDuration.WithLabelValues(worker).Observe(duration.Seconds())
}

// Retry 记录一次质量驱动的重试.
func (c *Collector) Retry(worker string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(worker).Inc()
}
