package engine

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"

	"github.com/continue-ai-company/aa-rag/internal/errors"
	"github.com/continue-ai-company/aa-rag/internal/store"
)

// SparseRetriever ranks chunks lexically with BM25. It materializes the
// whole table and builds an in-memory index per call: there is no persisted
// lexical index, so the ranking always reflects the table's current contents.
// This scans linearly with table size per query, a deliberate
// correctness-over-efficiency trade for small-to-medium corpora.
type SparseRetriever struct {
	store store.Store
}

// NewSparseRetriever creates a sparse retriever.
func NewSparseRetriever(s store.Store) *SparseRetriever {
	return &SparseRetriever{store: s}
}

// bleveChunk is the shape indexed per record.
type bleveChunk struct {
	Text string `json:"text"`
}

// Retrieve returns up to topK records by descending BM25 score, ties broken
// by corpus (insertion) order.
func (r *SparseRetriever) Retrieve(ctx context.Context, table, query string, topK int) ([]*store.Record, error) {
	records, err := r.store.ScanAll(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || topK <= 0 || strings.TrimSpace(query) == "" {
		return []*store.Record{}, nil
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.ScoringModel = "bm25"

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "create lexical index", err)
	}
	defer func() { _ = idx.Close() }()

	// Documents are keyed by corpus position, not record id: insert mode
	// allows duplicate ids, and every row must rank independently.
	batch := idx.NewBatch()
	for i, rec := range records {
		if err := batch.Index(strconv.Itoa(i), bleveChunk{Text: rec.Text}); err != nil {
			return nil, errors.New(errors.ErrCodeSearchFailed, "index chunk for lexical search", err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "build lexical index", err)
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("text")
	request := bleve.NewSearchRequest(matchQuery)
	request.Size = topK

	result, err := idx.SearchInContext(ctx, request)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "lexical search", err)
	}

	type hit struct {
		position int
		score    float64
	}
	hits := make([]hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		position, err := strconv.Atoi(h.ID)
		if err != nil || position < 0 || position >= len(records) {
			return nil, errors.New(errors.ErrCodeSearchFailed, "lexical index returned an unknown document", err)
		}
		hits = append(hits, hit{position: position, score: h.Score})
	}

	// Bleve breaks score ties by document id string; re-sort so ties follow
	// corpus order instead.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].position < hits[j].position
	})

	results := make([]*store.Record, 0, len(hits))
	for _, h := range hits {
		results = append(results, records[h.position])
	}
	return results, nil
}
