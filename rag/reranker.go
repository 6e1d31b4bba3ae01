package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wonjunchoi-arc/blind-sub000/types"
)

// 归一化后的分数区间与兜底分数.
const (
	rerankScoreFloor   = 0.1
	rerankScoreCeil    = 1.0
	rerankUniformScore = 0.8
)

// Reranker 交叉编码重排器接口.
type Reranker interface {
	// Rerank 对候选结果按与查询的相关性重排。
	// 返回的结果分数已归一化到 [0.1, 1.0]；失败时返回错误，
	// 调用方保持融合序降级。
	Rerank(ctx context.Context, query string, results []types.SearchResult) ([]types.SearchResult, error)
	Name() string
}

// RerankConfig 重排服务配置.
type RerankConfig struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// HTTPReranker 调用 Cohere 风格 /rerank 接口的重排器.
type HTTPReranker struct {
	cfg    RerankConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPReranker 创建 HTTP 重排器.
func NewHTTPReranker(cfg RerankConfig, logger *zap.Logger) *HTTPReranker {
	if cfg.Model == "" {
		cfg.Model = "rerank-multilingual-v3.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPReranker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "reranker")),
	}
}

func (r *HTTPReranker) Name() string { return "http-cross-encoder" }

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank 调用重排服务，按交叉编码分数重排并归一化.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, results []types.SearchResult) ([]types.SearchResult, error) {
	if len(results) == 0 {
		return nil, nil
	}

	docs := make([]string, len(results))
	for i, res := range results {
		docs[i] = res.Document.Content
	}

	body := rerankRequest{
		Model:     r.cfg.Model,
		Query:     query,
		Documents: docs,
		TopN:      len(docs),
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	url := strings.TrimRight(r.cfg.BaseURL, "/") + "/rerank"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank request returned status %d", resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse rerank response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("rerank response contained no results")
	}

	// 按服务端给出的相关性分数降序重排
	type pair struct {
		result types.SearchResult
		score  float64
	}
	pairs := make([]pair, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		if item.Index < 0 || item.Index >= len(results) {
			continue
		}
		pairs = append(pairs, pair{result: results[item.Index], score: item.RelevanceScore})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("rerank response indices out of range")
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		scores[i] = p.score
	}
	normalized := NormalizeRerankScores(scores)

	ordered := make([]types.SearchResult, len(pairs))
	for i, p := range pairs {
		ordered[i] = p.result
		ordered[i].RelevanceScore = normalized[i]
		ordered[i].Rank = i + 1
		ordered[i].RetrievalMethod = ordered[i].RetrievalMethod.Reranked()
	}
	return ordered, nil
}

// NormalizeRerankScores 把原始交叉编码分数 min-max 归一化到 [0.1, 1.0]。
// 所有分数相等（min-max 退化）时统一给 0.8.
func NormalizeRerankScores(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	minScore, maxScore := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]float64, len(scores))
	if maxScore == minScore {
		for i := range out {
			out[i] = rerankUniformScore
		}
		return out
	}
	span := rerankScoreCeil - rerankScoreFloor
	for i, s := range scores {
		out[i] = rerankScoreFloor + span*(s-minScore)/(maxScore-minScore)
	}
	return out
}
