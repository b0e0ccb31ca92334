// Package engine is the core of aa-rag: it turns documents into
// content-addressed chunk records, reconciles them against a store table
// under one of four write modes, and answers queries by fusing dense
// (vector) and sparse (lexical) rankings.
package engine

import (
	"strings"

	"github.com/continue-ai-company/aa-rag/internal/errors"
)

// CommonIdentifier is the identifier segment used when the caller supplies
// none, keeping shared knowledge apart from per-user partitions.
const CommonIdentifier = "common"

// TableKey is the composite key that names a store table. Knowledge base,
// engine type, and embedding model each get a segment, so chunks embedded
// with different models never share a vector space.
type TableKey struct {
	Knowledge      string // knowledge base name
	EngineType     string // retrieval engine type, e.g. "hybrid"
	EmbeddingModel string // embedding model identifier
	Identifier     string // optional partition; empty means common
}

// Name renders the key as a store table name:
// {knowledge}_{engine}_{model}_{identifier}. Hyphens become underscores so
// model names like "text-embedding-3-small" stay valid identifiers.
func (k TableKey) Name() string {
	identifier := k.Identifier
	if identifier == "" {
		identifier = CommonIdentifier
	}
	name := strings.Join([]string{k.Knowledge, k.EngineType, k.EmbeddingModel, identifier}, "_")
	return strings.ReplaceAll(name, "-", "_")
}

// Validate rejects keys with empty mandatory segments.
func (k TableKey) Validate() error {
	if k.Knowledge == "" {
		return errors.ValidationError("knowledge name must not be empty", nil)
	}
	if k.EngineType == "" {
		return errors.ValidationError("engine type must not be empty", nil)
	}
	if k.EmbeddingModel == "" {
		return errors.ValidationError("embedding model must not be empty", nil)
	}
	return nil
}
