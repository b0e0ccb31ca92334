package embed

import (
	"fmt"
	"time"

	"github.com/continue-ai-company/aa-rag/internal/errors"
)

// Provider names accepted by New.
const (
	ProviderStatic = "static"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config selects and configures an embedding backend.
type Config struct {
	Provider   string        // static, ollama, or openai
	Model      string        // backend model name, provider default when empty
	BaseURL    string        // HTTP endpoint for ollama/openai backends
	APIKey     string        // bearer token for openai-compatible backends
	Dimensions int           // expected dimension, 0 = auto-detect
	BatchSize  int           // texts per backend request
	Timeout    time.Duration // per-request timeout
	CacheSize  int           // LRU entries; < 0 disables the cache
}

// New builds an Embedder from config. Every backend except the static one is
// wrapped in an LRU cache unless CacheSize is negative.
func New(cfg Config) (Embedder, error) {
	var inner Embedder

	switch cfg.Provider {
	case ProviderStatic, "":
		// Deterministic and local; caching would only duplicate memory.
		return NewStaticEmbedder(), nil

	case ProviderOllama:
		inner = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})

	case ProviderOpenAI:
		inner = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})

	default:
		return nil, errors.ConfigError(
			fmt.Sprintf("unknown embedding provider %q (want static, ollama, or openai)", cfg.Provider), nil)
	}

	if cfg.CacheSize < 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.CacheSize)
}
