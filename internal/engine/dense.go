package engine

import (
	"context"

	"github.com/continue-ai-company/aa-rag/internal/embed"
	"github.com/continue-ai-company/aa-rag/internal/store"
)

// DenseRetriever ranks chunks by vector similarity between the embedded
// query and the stored embeddings. Vector-space compatibility is guaranteed
// by construction: the embedding model is part of the table name.
type DenseRetriever struct {
	store    store.Store
	embedder embed.Embedder
}

// NewDenseRetriever creates a dense retriever.
func NewDenseRetriever(s store.Store, e embed.Embedder) *DenseRetriever {
	return &DenseRetriever{store: s, embedder: e}
}

// Retrieve embeds the query and returns up to topK records by descending
// similarity.
func (r *DenseRetriever) Retrieve(ctx context.Context, table, query string, topK int) ([]*store.Record, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.store.SearchVector(ctx, table, vector, topK)
}
