package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/continue-ai-company/aa-rag/internal/errors"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 222, cfg.Server.Port)
	assert.Equal(t, "static", cfg.Embedding.Provider)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 512, cfg.Engine.ChunkSize)
	assert.Equal(t, 100, cfg.Engine.ChunkOverlap)
	assert.Equal(t, 3, cfg.Engine.TopK)
	assert.Equal(t, 0.5, cfg.Engine.DenseWeight)
	assert.Equal(t, 0.5, cfg.Engine.SparseWeight)
	assert.Equal(t, 60, cfg.Engine.RRFConstant)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ExplicitFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aarag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
engine:
  top_k: 7
  dense_weight: 0.8
  sparse_weight: 0.2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Engine.TopK)
	assert.Equal(t, 0.8, cfg.Engine.DenseWeight)
	// Untouched sections keep their defaults.
	assert.Equal(t, 512, cfg.Engine.ChunkSize)
	assert.Equal(t, "static", cfg.Embedding.Provider)
}

func TestLoad_ExplicitFileMissingFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigNotFound))
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aarag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aarag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644))

	t.Setenv("AARAG_PORT", "9090")
	t.Setenv("AARAG_EMBEDDING_PROVIDER", "ollama")
	t.Setenv("AARAG_DENSE_WEIGHT", "1.0")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 1.0, cfg.Engine.DenseWeight)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "quantum" }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"overlap >= size", func(c *Config) { c.Engine.ChunkOverlap = c.Engine.ChunkSize }},
		{"non-positive top_k", func(c *Config) { c.Engine.TopK = 0 }},
		{"negative weight", func(c *Config) { c.Engine.DenseWeight = -0.1 }},
		{"both weights zero", func(c *Config) { c.Engine.DenseWeight = 0; c.Engine.SparseWeight = 0 }},
		{"bad duration", func(c *Config) { c.Engine.RetrieveTimeout = "soon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CategoryConfig, errors.GetCategory(err))
		})
	}
}

func TestRetrieveTimeout_Parses(t *testing.T) {
	cfg := NewConfig()
	d, err := cfg.RetrieveTimeout()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}

func TestDataDir_ExplicitWins(t *testing.T) {
	cfg := NewConfig()
	cfg.Store.DataDir = "/tmp/aarag-test"
	dir, err := cfg.DataDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/aarag-test", dir)
}
