package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// 缓存上限；超过后新条目不再入缓存，避免无界增长.
const maxCacheEntries = 1000

// CachingProvider 在底层 Provider 上叠加内存缓存与降级语义.
//
// 语义:
//   - 空文本直接返回零向量，不触达后端.
//   - 命中缓存直接返回.
//   - 单条失败降级为零向量，批量调用不中断.
type CachingProvider struct {
	inner  Provider
	logger *zap.Logger

	mu     sync.RWMutex
	cache  map[string][]float64
	hits   int64
	misses int64
}

// NewCachingProvider 创建带缓存的嵌入提供者.
func NewCachingProvider(inner Provider, logger *zap.Logger) *CachingProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingProvider{
		inner:  inner,
		logger: logger.With(zap.String("component", "embedding_cache")),
		cache:  make(map[string][]float64),
	}
}

func (p *CachingProvider) Name() string      { return p.inner.Name() }
func (p *CachingProvider) Dimensions() int   { return p.inner.Dimensions() }
func (p *CachingProvider) MaxBatchSize() int { return p.inner.MaxBatchSize() }

// EmbedQuery 为单个查询生成嵌入。失败时返回零向量并记录告警，
// 检索管线按退化处理而不是崩溃.
func (p *CachingProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	normalized := strings.TrimSpace(query)
	if normalized == "" {
		return ZeroVector(p.Dimensions()), nil
	}

	key := cacheKey(normalized)
	if v, ok := p.lookup(key); ok {
		return v, nil
	}

	vector, err := p.inner.EmbedQuery(ctx, normalized)
	if err != nil {
		p.logger.Warn("embedding failed, degrading to zero vector", zap.Error(err))
		return ZeroVector(p.Dimensions()), nil
	}

	p.store(key, vector)
	return vector, nil
}

// EmbedDocuments 批量生成嵌入。整批失败时逐条回退，单条失败降级为零向量.
func (p *CachingProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	vectors, err := p.inner.EmbedDocuments(ctx, documents)
	if err == nil && len(vectors) == len(documents) {
		return vectors, nil
	}
	if err != nil {
		p.logger.Warn("batch embedding failed, falling back to per-item calls", zap.Error(err))
	}

	out := make([][]float64, len(documents))
	for i, doc := range documents {
		v, qErr := p.EmbedQuery(ctx, doc)
		if qErr != nil {
			v = ZeroVector(p.Dimensions())
		}
		out[i] = v
	}
	return out, nil
}

// Stats 返回缓存命中统计.
func (p *CachingProvider) Stats() (size int, hits, misses int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache), p.hits, p.misses
}

func (p *CachingProvider) lookup(key string) ([]float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.cache[key]
	if ok {
		p.hits++
	} else {
		p.misses++
	}
	return v, ok
}

func (p *CachingProvider) store(key string, vector []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.cache) < maxCacheEntries {
		p.cache[key] = vector
	}
}

func cacheKey(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
