// =============================================================================
// BlindInsight 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀。
const EnvPrefix = "BLINDINSIGHT"

// Config 是检索与编排核心的完整配置结构。
type Config struct {
	// Retrieval 混合检索配置
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Embedding 嵌入提供者配置
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Generation 文本生成配置
	Generation GenerationConfig `yaml:"generation"`

	// Rerank 交叉编码重排服务配置（BaseURL 为空时不启用远端重排）
	Rerank RerankConfig `yaml:"rerank"`

	// Supervisor 编排状态机配置
	Supervisor SupervisorConfig `yaml:"supervisor"`

	// Chroma 向量后端配置（可选，缺省用内存索引）
	Chroma ChromaConfig `yaml:"chroma"`

	// Lookup 元数据查询库配置
	Lookup LookupConfig `yaml:"lookup"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// RetrievalConfig 混合检索配置。
type RetrievalConfig struct {
	// BM25 与向量检索的融合权重
	BM25Weight   float64 `yaml:"bm25_weight"`
	VectorWeight float64 `yaml:"vector_weight"`

	// 排名前十重叠加成系数
	OverlapBonus float64 `yaml:"overlap_bonus"`

	// 重排开关
	UseReranking bool `yaml:"use_reranking"`

	// 相关性阈值，低于此分数的结果被丢弃
	RelevanceThreshold float64 `yaml:"relevance_threshold"`

	// 默认返回的结果数
	TopK int `yaml:"top_k"`

	// 词法索引缓存有效期
	LexicalCacheTTL time.Duration `yaml:"lexical_cache_ttl"`

	// 词法索引构建时的文档分页大小
	LexicalPageSize int `yaml:"lexical_page_size"`

	// 向量后端批量写入的子批大小
	UpsertBatchSize int `yaml:"upsert_batch_size"`
}

// EmbeddingConfig 嵌入提供者配置。
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	MaxBatch   int           `yaml:"max_batch"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GenerationConfig 文本生成配置。
type GenerationConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RerankConfig 交叉编码重排服务配置。
type RerankConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// SupervisorConfig 编排状态机配置。
type SupervisorConfig struct {
	// 每轮最大重试次数
	MaxRetryCount int `yaml:"max_retry_count"`

	// 单个节点外呼超时
	NodeTimeout time.Duration `yaml:"node_timeout"`
}

// ChromaConfig Chroma 向量后端配置。
type ChromaConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// LookupConfig 元数据查询库配置。
type LookupConfig struct {
	// SQLite 文件路径，":memory:" 表示内存库
	Path string `yaml:"path"`
}

// LogConfig 日志配置。
type LogConfig struct {
	// 级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 是否开发模式（彩色控制台输出）
	Development bool `yaml:"development"`
}

// Default 返回生产默认配置。
func Default() *Config {
	return &Config{
		Retrieval: RetrievalConfig{
			BM25Weight:         0.5,
			VectorWeight:       0.5,
			OverlapBonus:       1.2,
			UseReranking:       true,
			RelevanceThreshold: 0.05,
			TopK:               10,
			LexicalCacheTTL:    time.Hour,
			LexicalPageSize:    1000,
			UpsertBatchSize:    200,
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			MaxBatch:   100,
			Timeout:    30 * time.Second,
		},
		Generation: GenerationConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			MaxTokens:   4000,
			Timeout:     60 * time.Second,
		},
		Rerank: RerankConfig{
			Model:   "rerank-multilingual-v3.0",
			Timeout: 30 * time.Second,
		},
		Supervisor: SupervisorConfig{
			MaxRetryCount: 2,
			NodeTimeout:   90 * time.Second,
		},
		Chroma: ChromaConfig{
			Enabled: false,
			URL:     "http://localhost:8000",
		},
		Lookup: LookupConfig{
			Path: "blindinsight_meta.db",
		},
		Log: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}

// Load 从 YAML 文件加载配置，再套用环境变量覆盖。
// path 为空时跳过文件，仅用默认值 + 环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 套用环境变量覆盖（仅覆盖运维上常改的键）。
func (c *Config) applyEnv() {
	if v := envStr("EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := envStr("EMBEDDING_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := envStr("GENERATION_API_KEY"); v != "" {
		c.Generation.APIKey = v
	}
	if v := envStr("GENERATION_BASE_URL"); v != "" {
		c.Generation.BaseURL = v
	}
	if v := envStr("RERANK_API_KEY"); v != "" {
		c.Rerank.APIKey = v
	}
	if v := envStr("RERANK_BASE_URL"); v != "" {
		c.Rerank.BaseURL = v
	}
	if v := envStr("CHROMA_URL"); v != "" {
		c.Chroma.URL = v
		c.Chroma.Enabled = true
	}
	if v := envStr("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := envStr("MAX_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Supervisor.MaxRetryCount = n
		}
	}
	if v := envStr("RELEVANCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Retrieval.RelevanceThreshold = f
		}
	}
}

func envStr(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + "_" + key))
}

// Validate 校验配置合法性。
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.BM25Weight < 0 || r.VectorWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}
	if r.BM25Weight+r.VectorWeight <= 0 {
		return fmt.Errorf("retrieval weights must sum to a positive value")
	}
	if r.RelevanceThreshold < 0 || r.RelevanceThreshold > 1 {
		return fmt.Errorf("relevance_threshold must be within [0,1], got %v", r.RelevanceThreshold)
	}
	if r.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", r.TopK)
	}
	if r.LexicalCacheTTL <= 0 {
		return fmt.Errorf("lexical_cache_ttl must be positive, got %v", r.LexicalCacheTTL)
	}
	if r.LexicalPageSize <= 0 {
		return fmt.Errorf("lexical_page_size must be positive, got %d", r.LexicalPageSize)
	}
	if r.UpsertBatchSize <= 0 {
		return fmt.Errorf("upsert_batch_size must be positive, got %d", r.UpsertBatchSize)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.MaxBatch <= 0 {
		return fmt.Errorf("embedding max_batch must be positive, got %d", c.Embedding.MaxBatch)
	}
	if c.Supervisor.MaxRetryCount < 0 {
		return fmt.Errorf("max_retry_count must be non-negative, got %d", c.Supervisor.MaxRetryCount)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}
