package engine

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/continue-ai-company/aa-rag/internal/document"
	"github.com/continue-ai-company/aa-rag/internal/embed"
	"github.com/continue-ai-company/aa-rag/internal/errors"
	"github.com/continue-ai-company/aa-rag/internal/splitter"
	"github.com/continue-ai-company/aa-rag/internal/store"
)

// Engine defaults.
const (
	DefaultEngineType      = "hybrid"
	DefaultTopK            = 3
	DefaultDenseWeight     = 0.5
	DefaultSparseWeight    = 0.5
	DefaultRetrieveTimeout = 30 * time.Second
)

// Options configures an Engine. Zero values take the defaults above.
type Options struct {
	EngineType      string
	RRFConstant     int
	RetrieveTimeout time.Duration
	Logger          *slog.Logger
}

// Engine is the indexing and retrieval facade: split, identify, reconcile on
// the way in; dense and sparse ranking fused on the way out.
type Engine struct {
	store    store.Store
	embedder embed.Embedder
	indexer  *Indexer
	dense    *DenseRetriever
	sparse   *SparseRetriever
	opts     Options
	logger   *slog.Logger
}

// New creates an Engine on top of a store and an embedder.
func New(s store.Store, e embed.Embedder, opts Options) *Engine {
	if opts.EngineType == "" {
		opts.EngineType = DefaultEngineType
	}
	if opts.RRFConstant <= 0 {
		opts.RRFConstant = DefaultRRFConstant
	}
	if opts.RetrieveTimeout <= 0 {
		opts.RetrieveTimeout = DefaultRetrieveTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:    s,
		embedder: e,
		indexer:  NewIndexer(s, e, logger),
		dense:    NewDenseRetriever(s, e),
		sparse:   NewSparseRetriever(s),
		opts:     opts,
		logger:   logger,
	}
}

// IndexRequest indexes one or more documents into a knowledge base.
type IndexRequest struct {
	Knowledge    string
	Identifier   string
	Documents    []*document.Document
	ChunkSize    int // 0 = splitter default
	ChunkOverlap int // 0 = splitter default
	Mode         Mode
}

// RetrieveRequest queries a knowledge base.
type RetrieveRequest struct {
	Knowledge    string
	Identifier   string
	Query        string
	TopK         int // 0 = DefaultTopK
	DenseWeight  float64
	SparseWeight float64
}

// Result is one retrieved chunk. Record id and vector are stripped; callers
// get text and metadata only.
type Result struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// tableFor builds the composite table key for a knowledge base.
func (e *Engine) tableFor(knowledge, identifier string) (string, error) {
	key := TableKey{
		Knowledge:      knowledge,
		EngineType:     e.opts.EngineType,
		EmbeddingModel: e.embedder.ModelName(),
		Identifier:     identifier,
	}
	if err := key.Validate(); err != nil {
		return "", err
	}
	return key.Name(), nil
}

// Index splits the request's documents into chunks, assigns content ids, and
// reconciles them against the knowledge base's table. It returns the ids
// actually written.
func (e *Engine) Index(ctx context.Context, req IndexRequest) ([]string, error) {
	table, err := e.tableFor(req.Knowledge, req.Identifier)
	if err != nil {
		return nil, err
	}
	if len(req.Documents) == 0 {
		return nil, errors.ValidationError("index request has no documents", nil)
	}
	for _, doc := range req.Documents {
		if doc == nil || doc.Text == "" {
			return nil, errors.ValidationError("document text must not be empty", nil)
		}
	}

	split, err := splitter.New(splitter.Options{
		ChunkSize:    req.ChunkSize,
		ChunkOverlap: req.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	var chunks []*document.Chunk
	for _, doc := range req.Documents {
		chunks = append(chunks, split.Split(doc)...)
	}
	document.AssignIDs(chunks)

	start := time.Now()
	written, err := e.indexer.Reconcile(ctx, table, chunks, req.Mode)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("index complete",
		slog.String("table", table),
		slog.Int("chunks", len(chunks)),
		slog.Int("written", len(written)),
		slog.Duration("elapsed", time.Since(start)))
	return written, nil
}

// Retrieve runs dense and sparse retrieval concurrently, joins them under
// one timeout, and fuses the rankings. Weight-zeroing one side yields pure
// dense or pure sparse results.
func (e *Engine) Retrieve(ctx context.Context, req RetrieveRequest) ([]Result, error) {
	table, err := e.tableFor(req.Knowledge, req.Identifier)
	if err != nil {
		return nil, err
	}
	if req.Query == "" {
		return nil, errors.ValidationError("query must not be empty", nil)
	}
	if req.TopK == 0 {
		req.TopK = DefaultTopK
	}
	if req.TopK < 0 {
		return nil, errors.ValidationError("top_k must be positive", nil)
	}
	if req.DenseWeight < 0 || req.SparseWeight < 0 {
		return nil, errors.ValidationError("retrieval weights must not be negative", nil)
	}
	if req.DenseWeight == 0 && req.SparseWeight == 0 {
		return nil, errors.ValidationError("at least one retrieval weight must be positive", nil)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, e.opts.RetrieveTimeout)
	defer cancel()

	var denseResults, sparseResults []*store.Record
	g, gctx := errgroup.WithContext(timeoutCtx)

	// A weight-zeroed side is skipped entirely: its ranking cannot affect
	// the fused order, and skipping avoids the sparse side's full-table scan.
	if req.DenseWeight > 0 {
		g.Go(func() error {
			var err error
			denseResults, err = e.dense.Retrieve(gctx, table, req.Query, req.TopK)
			return err
		})
	}
	if req.SparseWeight > 0 {
		g.Go(func() error {
			var err error
			sparseResults, err = e.sparse.Retrieve(gctx, table, req.Query, req.TopK)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Timeout("retrieval exceeded its deadline", err).
				WithDetail("table", table)
		}
		return nil, withRetrieveContext(err, table)
	}

	fused := fuse(denseResults, sparseResults,
		Weights{Dense: req.DenseWeight, Sparse: req.SparseWeight},
		e.opts.RRFConstant, req.TopK)

	results := make([]Result, 0, len(fused))
	for _, r := range fused {
		results = append(results, Result{Text: r.Text, Metadata: r.Metadata})
	}
	return results, nil
}

// withRetrieveContext annotates a failure with the table without changing
// its code.
func withRetrieveContext(err error, table string) error {
	var re *errors.RagError
	if stderrors.As(err, &re) {
		return re.WithDetail("table", table)
	}
	return errors.Wrap(errors.ErrCodeSearchFailed, err).WithDetail("table", table)
}
