package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.5, cfg.Retrieval.BM25Weight)
	assert.Equal(t, 0.5, cfg.Retrieval.VectorWeight)
	assert.Equal(t, 1.2, cfg.Retrieval.OverlapBonus)
	assert.Equal(t, time.Hour, cfg.Retrieval.LexicalCacheTTL)
	assert.Equal(t, 1000, cfg.Retrieval.LexicalPageSize)
	assert.Equal(t, 2, cfg.Supervisor.MaxRetryCount)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
retrieval:
  relevance_threshold: 0.2
  top_k: 5
supervisor:
  max_retry_count: 4
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Retrieval.RelevanceThreshold)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 4, cfg.Supervisor.MaxRetryCount)
	assert.Equal(t, "debug", cfg.Log.Level)
	// 未覆盖的键保持默认
	assert.Equal(t, 0.5, cfg.Retrieval.BM25Weight)
}

func TestLoadMissingFileFails(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BLINDINSIGHT_EMBEDDING_API_KEY", "env-key")
	t.Setenv("BLINDINSIGHT_MAX_RETRY_COUNT", "7")
	t.Setenv("BLINDINSIGHT_RELEVANCE_THRESHOLD", "0.15")
	t.Setenv("BLINDINSIGHT_CHROMA_URL", "http://chroma:9000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Embedding.APIKey)
	assert.Equal(t, 7, cfg.Supervisor.MaxRetryCount)
	assert.Equal(t, 0.15, cfg.Retrieval.RelevanceThreshold)
	assert.Equal(t, "http://chroma:9000", cfg.Chroma.URL)
	assert.True(t, cfg.Chroma.Enabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative weight", func(c *Config) { c.Retrieval.BM25Weight = -0.1 }},
		{"zero weights", func(c *Config) { c.Retrieval.BM25Weight = 0; c.Retrieval.VectorWeight = 0 }},
		{"threshold above one", func(c *Config) { c.Retrieval.RelevanceThreshold = 1.5 }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"zero ttl", func(c *Config) { c.Retrieval.LexicalCacheTTL = 0 }},
		{"negative retries", func(c *Config) { c.Supervisor.MaxRetryCount = -1 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
