package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wonjunchoi-arc/blind-sub000/internal/metrics"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// 词法索引缓存默认参数.
const (
	defaultLexicalTTL      = time.Hour
	defaultLexicalPageSize = 1000
)

// LexicalCache 按 (collection, filters) 键缓存已构建的 BM25 索引.
//
// 构建需要翻页拉取整个过滤后的文档子集，成本高；缓存命中直接复用，
// 过期惰性淘汰。同键并发未命中通过 singleflight 合并为一次构建。
type LexicalCache struct {
	index     VectorIndex
	store     *gocache.Cache
	group     singleflight.Group
	ttl       time.Duration
	pageSize  int
	builds    atomic.Int64
	logger    *zap.Logger
	collector *metrics.Collector
}

// LexicalCacheOption configures a LexicalCache.
type LexicalCacheOption func(*LexicalCache)

// WithLexicalTTL 设置缓存条目存活时间.
func WithLexicalTTL(ttl time.Duration) LexicalCacheOption {
	return func(c *LexicalCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLexicalPageSize 设置文档翻页大小.
func WithLexicalPageSize(n int) LexicalCacheOption {
	return func(c *LexicalCache) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLexicalMetrics 挂接指标收集器.
func WithLexicalMetrics(m *metrics.Collector) LexicalCacheOption {
	return func(c *LexicalCache) {
		c.collector = m
	}
}

// NewLexicalCache 创建词法索引缓存.
func NewLexicalCache(index VectorIndex, logger *zap.Logger, opts ...LexicalCacheOption) *LexicalCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &LexicalCache{
		index:    index,
		ttl:      defaultLexicalTTL,
		pageSize: defaultLexicalPageSize,
		logger:   logger.With(zap.String("component", "lexical_cache")),
	}
	for _, opt := range opts {
		opt(c)
	}
	// 惰性淘汰：不开启后台清理 goroutine，过期条目在 Get 时丢弃.
	c.store = gocache.New(c.ttl, gocache.NoExpiration)
	return c
}

// Get 返回 (collection, filters) 对应的词法索引，未命中或过期时重建.
func (c *LexicalCache) Get(ctx context.Context, collection string, filters map[string]any) (*LexicalIndex, error) {
	key := cacheKey(collection, filters)

	if cached, ok := c.store.Get(key); ok {
		c.collector.LexicalCacheHit(collection)
		return cached.(*LexicalIndex), nil
	}
	c.collector.LexicalCacheMiss(collection)

	// 同键并发构建合并为一次
	built, err, _ := c.group.Do(key, func() (any, error) {
		if cached, ok := c.store.Get(key); ok {
			return cached.(*LexicalIndex), nil
		}
		idx, err := c.build(ctx, collection, filters)
		if err != nil {
			return nil, err
		}
		c.store.Set(key, idx, c.ttl)
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return built.(*LexicalIndex), nil
}

// build 翻页拉取过滤后的全部文档并构建 BM25 索引.
func (c *LexicalCache) build(ctx context.Context, collection string, filters map[string]any) (*LexicalIndex, error) {
	start := time.Now()

	all, err := c.loadAll(ctx, collection, filters)
	if err != nil {
		return nil, err
	}

	idx := NewLexicalIndex(all)
	c.builds.Add(1)
	c.collector.LexicalBuild(collection)
	c.logger.Info("lexical index built",
		zap.String("collection", collection),
		zap.Int("documents", idx.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return idx, nil
}

// loadAll 逐页拉取直到不足一页为止.
func (c *LexicalCache) loadAll(ctx context.Context, collection string, filters map[string]any) ([]types.Document, error) {
	var all []types.Document
	for offset := 0; ; offset += c.pageSize {
		page, err := c.index.Documents(ctx, collection, filters, c.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("load documents page at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < c.pageSize {
			return all, nil
		}
	}
}

// Builds 返回累计构建次数，用于缓存行为观测.
func (c *LexicalCache) Builds() int64 { return c.builds.Load() }

// Clear 清空全部缓存条目.
func (c *LexicalCache) Clear() {
	c.store.Flush()
	c.logger.Info("lexical cache cleared")
}

// cacheKey 规范化键：过滤键排序后拼接，保证键的顺序无关性.
func cacheKey(collection string, filters map[string]any) string {
	if len(filters) == 0 {
		return collection
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(collection)
	for _, k := range keys {
		sb.WriteString("|")
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(fmt.Sprintf("%v", filters[k]))
	}
	return sb.String()
}
