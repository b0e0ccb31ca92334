// Package embed provides text embedding backends behind a single interface.
// The engine only ever sees the Embedder capability; which backend sits
// behind it (static hash, Ollama, an OpenAI-compatible API) is configuration.
package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// MaxBatchSize caps a single backend call to bound memory.
	MaxBatchSize = 256

	// DefaultTimeout is the default per-request timeout for HTTP backends.
	DefaultTimeout = 60 * time.Second

	// DefaultCacheSize is the default LRU entry count for CachedEmbedder.
	DefaultCacheSize = 4096

	// StaticDimensions is the embedding dimension of the static embedder.
	StaticDimensions = 256
)

// Embedder converts text into fixed-length vectors.
// Both calls are deterministic for a given model identifier: the same text
// always yields the same vector, which makes the model name safe to use as
// part of a table's composite key.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one backend call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
