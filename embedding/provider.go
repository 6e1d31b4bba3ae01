package embedding

import "context"

// Provider 定义统一的嵌入提供者接口.
type Provider interface {
	// EmbedQuery 为单个查询生成嵌入.
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments 为多个文档生成嵌入，输出顺序与输入一致.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)

	// Name 返回提供者名称.
	Name() string

	// Dimensions 返回嵌入维度.
	Dimensions() int

	// MaxBatchSize 返回单次请求支持的最大批量.
	MaxBatchSize() int
}

// ZeroVector returns the degraded embedding used for failed items.
func ZeroVector(dims int) []float64 {
	return make([]float64, dims)
}
