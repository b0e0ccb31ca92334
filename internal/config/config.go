// Package config loads aa-rag configuration from defaults, a YAML file, and
// AARAG_* environment variables, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/continue-ai-company/aa-rag/internal/errors"
)

// File names checked when no explicit config path is given.
const (
	ProjectConfigName = "aarag.yaml"
	UserConfigDir     = ".aarag"
	UserConfigName    = "config.yaml"
)

// Config is the complete aa-rag configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Engine    EngineConfig    `yaml:"engine"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level"`      // debug, info, warn, error
	FilePath  string `yaml:"file_path"`  // empty = default under ~/.aarag/logs
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
	Stderr    bool   `yaml:"stderr"` // also write to stderr
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // static, ollama, openai
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	Timeout    string `yaml:"timeout"`    // Go duration, e.g. "60s"
	CacheSize  int    `yaml:"cache_size"` // LRU entries; -1 disables
}

// StoreConfig configures persistence.
type StoreConfig struct {
	Backend string `yaml:"backend"`  // sqlite or memory
	DataDir string `yaml:"data_dir"` // empty = ~/.aarag/data
}

// EngineConfig configures chunking and retrieval defaults.
type EngineConfig struct {
	EngineType      string  `yaml:"engine_type"`
	ChunkSize       int     `yaml:"chunk_size"`
	ChunkOverlap    int     `yaml:"chunk_overlap"`
	TopK            int     `yaml:"top_k"`
	DenseWeight     float64 `yaml:"dense_weight"`
	SparseWeight    float64 `yaml:"sparse_weight"`
	RRFConstant     int     `yaml:"rrf_constant"`
	RetrieveTimeout string  `yaml:"retrieve_timeout"` // Go duration, e.g. "30s"
}

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 222,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
			Stderr:    true,
		},
		Embedding: EmbeddingConfig{
			Provider:  "static",
			BatchSize: 32,
			Timeout:   "60s",
			CacheSize: 4096,
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
		Engine: EngineConfig{
			EngineType:      "hybrid",
			ChunkSize:       512,
			ChunkOverlap:    100,
			TopK:            3,
			DenseWeight:     0.5,
			SparseWeight:    0.5,
			RRFConstant:     60,
			RetrieveTimeout: "30s",
		},
	}
}

// Load builds the effective configuration. path may be empty, in which case
// ./aarag.yaml and ~/.aarag/config.yaml are tried; a missing file is fine,
// an unreadable or invalid one is not.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		if err := cfg.loadYAML(path, true); err != nil {
			return nil, err
		}
	} else {
		// User config first, then the project file on top of it.
		if home, err := os.UserHomeDir(); err == nil {
			if err := cfg.loadYAML(filepath.Join(home, UserConfigDir, UserConfigName), false); err != nil {
				return nil, err
			}
		}
		if err := cfg.loadYAML(ProjectConfigName, false); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML merges one YAML file into the config. With required=false a
// missing file is silently skipped.
func (c *Config) loadYAML(path string, required bool) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if required {
			return errors.New(errors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return nil
	}
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.ConfigError(fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies AARAG_* environment variables, the highest
// precedence layer.
func (c *Config) applyEnvOverrides() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setString("AARAG_HOST", &c.Server.Host)
	setInt("AARAG_PORT", &c.Server.Port)
	setString("AARAG_LOG_LEVEL", &c.Logging.Level)
	setString("AARAG_LOG_FILE", &c.Logging.FilePath)
	setString("AARAG_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	setString("AARAG_EMBEDDING_MODEL", &c.Embedding.Model)
	setString("AARAG_EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	setString("AARAG_EMBEDDING_API_KEY", &c.Embedding.APIKey)
	setInt("AARAG_EMBEDDING_BATCH_SIZE", &c.Embedding.BatchSize)
	setString("AARAG_STORE_BACKEND", &c.Store.Backend)
	setString("AARAG_DATA_DIR", &c.Store.DataDir)
	setInt("AARAG_CHUNK_SIZE", &c.Engine.ChunkSize)
	setInt("AARAG_CHUNK_OVERLAP", &c.Engine.ChunkOverlap)
	setInt("AARAG_TOP_K", &c.Engine.TopK)
	setFloat("AARAG_DENSE_WEIGHT", &c.Engine.DenseWeight)
	setFloat("AARAG_SPARSE_WEIGHT", &c.Engine.SparseWeight)
	setInt("AARAG_RRF_CONSTANT", &c.Engine.RRFConstant)
}

// Validate rejects configurations the rest of the system would choke on.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.ConfigError(fmt.Sprintf("server port %d out of range", c.Server.Port), nil)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.ConfigError(fmt.Sprintf("unknown log level %q", c.Logging.Level), nil)
	}
	switch c.Embedding.Provider {
	case "static", "ollama", "openai":
	default:
		return errors.ConfigError(fmt.Sprintf("unknown embedding provider %q", c.Embedding.Provider), nil)
	}
	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		return errors.ConfigError(fmt.Sprintf("unknown store backend %q", c.Store.Backend), nil)
	}
	if c.Engine.ChunkSize <= 0 {
		return errors.ConfigError("chunk_size must be positive", nil)
	}
	if c.Engine.ChunkOverlap < 0 || c.Engine.ChunkOverlap >= c.Engine.ChunkSize {
		return errors.ConfigError("chunk_overlap must be non-negative and smaller than chunk_size", nil)
	}
	if c.Engine.TopK <= 0 {
		return errors.ConfigError("top_k must be positive", nil)
	}
	if c.Engine.DenseWeight < 0 || c.Engine.SparseWeight < 0 {
		return errors.ConfigError("retrieval weights must not be negative", nil)
	}
	if c.Engine.DenseWeight == 0 && c.Engine.SparseWeight == 0 {
		return errors.ConfigError("at least one retrieval weight must be positive", nil)
	}
	if _, err := c.EmbeddingTimeout(); err != nil {
		return err
	}
	if _, err := c.RetrieveTimeout(); err != nil {
		return err
	}
	return nil
}

// EmbeddingTimeout parses the embedding timeout duration.
func (c *Config) EmbeddingTimeout() (time.Duration, error) {
	return parseDuration("embedding.timeout", c.Embedding.Timeout)
}

// RetrieveTimeout parses the retrieval timeout duration.
func (c *Config) RetrieveTimeout() (time.Duration, error) {
	return parseDuration("engine.retrieve_timeout", c.Engine.RetrieveTimeout)
}

// DataDir resolves the store data directory, defaulting under the home dir.
func (c *Config) DataDir() (string, error) {
	if c.Store.DataDir != "" {
		return c.Store.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.ConfigError("resolve home directory for data dir", err)
	}
	return filepath.Join(home, UserConfigDir, "data"), nil
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.ConfigError(fmt.Sprintf("%s is not a valid duration: %q", field, value), err)
	}
	if d < 0 {
		return 0, errors.ConfigError(fmt.Sprintf("%s must not be negative", field), nil)
	}
	return d, nil
}
