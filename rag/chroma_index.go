package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/internal/metrics"
	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// defaultUpsertBatch 子批大小；Chroma 对单次写入条数有后端限制.
const defaultUpsertBatch = 200

// ChromaVectorIndex Chroma 后端的向量索引实现.
//
// 每个评论主题集合对应一个 Chroma collection，惰性创建并缓存句柄。
// 查询失败按降级语义处理：返回空结果并记日志，不向调用方抛错。
type ChromaVectorIndex struct {
	client    chromago.Client
	batchSize int
	logger    *zap.Logger
	collector *metrics.Collector

	mu          sync.Mutex
	collections map[string]chromago.Collection
}

// ChromaOption configures a ChromaVectorIndex.
type ChromaOption func(*ChromaVectorIndex)

// WithUpsertBatchSize 设置写入子批大小.
func WithUpsertBatchSize(n int) ChromaOption {
	return func(idx *ChromaVectorIndex) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithChromaMetrics 挂接指标收集器.
func WithChromaMetrics(c *metrics.Collector) ChromaOption {
	return func(idx *ChromaVectorIndex) {
		idx.collector = c
	}
}

// NewChromaVectorIndex 创建 Chroma 向量索引.
func NewChromaVectorIndex(url string, logger *zap.Logger, opts ...ChromaOption) (*ChromaVectorIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(url))
	if err != nil {
		return nil, fmt.Errorf("create chroma client: %w", err)
	}

	idx := &ChromaVectorIndex{
		client:      client,
		batchSize:   defaultUpsertBatch,
		logger:      logger.With(zap.String("component", "chroma_vector_index")),
		collections: make(map[string]chromago.Collection),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

func (idx *ChromaVectorIndex) collection(ctx context.Context, name string) (chromago.Collection, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if coll, ok := idx.collections[name]; ok {
		return coll, nil
	}
	coll, err := idx.client.GetOrCreateCollection(ctx, name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "BlindInsight "+name+" collection"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}
	idx.collections[name] = coll
	return coll, nil
}

// Upsert 批量写入。子批失败回退为逐条写入；返回实际写入条数，
// 部分失败降级而不是报错.
func (idx *ChromaVectorIndex) Upsert(ctx context.Context, collection string, entries []types.IndexedEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	coll, err := idx.collection(ctx, collection)
	if err != nil {
		idx.logger.Warn("vector backend unavailable, upsert skipped",
			zap.String("collection", collection), zap.Error(err))
		return 0, nil
	}

	written := 0
	for start := 0; start < len(entries); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		if err := idx.addBatch(ctx, coll, batch); err == nil {
			written += len(batch)
			continue
		}

		// 子批失败：逐条重试，能写多少写多少.
		idx.collector.UpsertDegraded(collection)
		idx.logger.Warn("sub-batch upsert failed, retrying per entry",
			zap.String("collection", collection),
			zap.Int("batch_size", len(batch)))
		for _, entry := range batch {
			if err := idx.addBatch(ctx, coll, []types.IndexedEntry{entry}); err != nil {
				idx.logger.Warn("entry upsert failed, skipping",
					zap.String("document_id", entry.DocumentID),
					zap.Error(err))
				continue
			}
			written++
		}
	}

	idx.collector.UpsertWritten(collection, written)
	return written, nil
}

func (idx *ChromaVectorIndex) addBatch(ctx context.Context, coll chromago.Collection, entries []types.IndexedEntry) error {
	ids := make([]chromago.DocumentID, 0, len(entries))
	texts := make([]string, 0, len(entries))
	embs := make([]embeddings.Embedding, 0, len(entries))
	metas := make([]chromago.DocumentMetadata, 0, len(entries))

	for _, entry := range entries {
		ids = append(ids, chromago.DocumentID(entry.DocumentID))
		texts = append(texts, entry.Document.Content)
		embs = append(embs, embeddings.NewEmbeddingFromFloat32(toFloat32(entry.Embedding)))
		metas = append(metas, toChromaMetadata(entry.Document.Metadata))
	}

	// Upsert 语义：同 ID 覆盖.
	return coll.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metas...),
	)
}

// Query 近邻查询；后端失败返回空列表并记日志.
func (idx *ChromaVectorIndex) Query(ctx context.Context, collection string, vector []float64, k int, filters map[string]any) ([]ScoredDocument, error) {
	if k <= 0 {
		return nil, nil
	}

	coll, err := idx.collection(ctx, collection)
	if err != nil {
		idx.logger.Warn("vector backend unavailable, returning empty result",
			zap.String("collection", collection), zap.Error(err))
		return nil, nil
	}

	opts := []chromago.CollectionQueryOption{
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(toFloat32(vector))),
		chromago.WithNResults(k),
	}
	if where := toChromaWhere(filters); where != nil {
		opts = append(opts, chromago.WithWhereQuery(where))
	}

	results, err := coll.Query(ctx, opts...)
	if err != nil {
		idx.logger.Warn("vector query failed, returning empty result",
			zap.String("collection", collection), zap.Error(err))
		return nil, nil
	}

	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	idGroups := results.GetIDGroups()
	distGroups := results.GetDistancesGroups()
	if len(docGroups) == 0 {
		return nil, nil
	}

	out := make([]ScoredDocument, 0, len(docGroups[0]))
	for i, doc := range docGroups[0] {
		scored := ScoredDocument{
			Document: types.Document{Content: doc.ContentString()},
		}
		if len(idGroups) > 0 && i < len(idGroups[0]) {
			scored.DocumentID = string(idGroups[0][i])
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			scored.Document.Metadata = fromChromaMetadata(metaGroups[0][i])
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			scored.Distance = float64(distGroups[0][i])
		}
		out = append(out, scored)
	}
	return out, nil
}

// Documents 分页列出集合文档（词法索引构建用）.
func (idx *ChromaVectorIndex) Documents(ctx context.Context, collection string, filters map[string]any, limit, offset int) ([]types.Document, error) {
	if limit <= 0 {
		return nil, nil
	}

	coll, err := idx.collection(ctx, collection)
	if err != nil {
		idx.logger.Warn("vector backend unavailable, returning empty page",
			zap.String("collection", collection), zap.Error(err))
		return nil, nil
	}

	opts := []chromago.CollectionGetOption{
		chromago.WithLimitGet(limit),
		chromago.WithOffsetGet(offset),
	}
	if where := toChromaWhere(filters); where != nil {
		opts = append(opts, chromago.WithWhereGet(where))
	}

	results, err := coll.Get(ctx, opts...)
	if err != nil {
		idx.logger.Warn("document page fetch failed",
			zap.String("collection", collection), zap.Error(err))
		return nil, nil
	}

	docs := results.GetDocuments()
	metas := results.GetMetadatas()
	out := make([]types.Document, 0, len(docs))
	for i, doc := range docs {
		d := types.Document{Content: doc.ContentString()}
		if i < len(metas) {
			d.Metadata = fromChromaMetadata(metas[i])
		}
		out = append(out, d)
	}
	return out, nil
}

// Count 返回集合文档数.
func (idx *ChromaVectorIndex) Count(ctx context.Context, collection string) (int, error) {
	coll, err := idx.collection(ctx, collection)
	if err != nil {
		return 0, nil
	}
	count, err := coll.Count(ctx)
	if err != nil {
		idx.logger.Warn("count failed", zap.String("collection", collection), zap.Error(err))
		return 0, nil
	}
	return count, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func toChromaMetadata(md map[string]any) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(md))
	for k, v := range md {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, chromago.NewStringAttribute(k, val))
		case int:
			attrs = append(attrs, chromago.NewIntAttribute(k, int64(val)))
		case int64:
			attrs = append(attrs, chromago.NewIntAttribute(k, val))
		case float64:
			attrs = append(attrs, chromago.NewFloatAttribute(k, val))
		case bool:
			attrs = append(attrs, chromago.NewBoolAttribute(k, val))
		default:
			attrs = append(attrs, chromago.NewStringAttribute(k, fmt.Sprintf("%v", val)))
		}
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// fromChromaMetadata converts DocumentMetadata back to a plain map.
// The struct has no public accessor for all values; round-trip through JSON.
func fromChromaMetadata(meta chromago.DocumentMetadata) map[string]any {
	if meta == nil {
		return nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func toChromaWhere(filters map[string]any) chromago.WhereFilter {
	if len(filters) == 0 {
		return nil
	}
	clauses := make([]chromago.WhereClause, 0, len(filters))
	for k, v := range filters {
		switch val := v.(type) {
		case string:
			clauses = append(clauses, chromago.EqString(k, val))
		case int:
			clauses = append(clauses, chromago.EqInt(k, val))
		case bool:
			clauses = append(clauses, chromago.EqBool(k, val))
		case float64:
			clauses = append(clauses, chromago.EqFloat(k, float32(val)))
		default:
			clauses = append(clauses, chromago.EqString(k, fmt.Sprintf("%v", val)))
		}
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return chromago.And(clauses...)
}
