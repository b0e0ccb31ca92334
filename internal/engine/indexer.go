package engine

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/continue-ai-company/aa-rag/internal/document"
	"github.com/continue-ai-company/aa-rag/internal/embed"
	"github.com/continue-ai-company/aa-rag/internal/errors"
	"github.com/continue-ai-company/aa-rag/internal/store"
)

// Indexer reconciles chunks against a store table under a write mode.
// Reconcile calls on the same table are serialized with a per-table mutex:
// deinsert and upsert read existing ids before writing, and the store gives
// no transactional isolation between those two steps.
type Indexer struct {
	store    store.Store
	embedder embed.Embedder
	logger   *slog.Logger

	mu     sync.Mutex
	tables map[string]*sync.Mutex
}

// NewIndexer creates an Indexer. A nil logger falls back to slog.Default.
func NewIndexer(s store.Store, e embed.Embedder, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:    s,
		embedder: e,
		logger:   logger,
		tables:   make(map[string]*sync.Mutex),
	}
}

// tableLock returns the mutex guarding one table's write path.
func (ix *Indexer) tableLock(table string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	m, ok := ix.tables[table]
	if !ok {
		m = &sync.Mutex{}
		ix.tables[table] = m
	}
	return m
}

// Reconcile embeds the chunks in one batch and writes them to the table
// according to mode. It returns the ids the store actually received; for
// deinsert that excludes ids that were already present and skipped.
//
// When the table does not exist, any mode degrades to insert: the table is
// created with the embedder's dimension and every chunk is written. A
// deinsert or upsert request degrading this way is logged loudly, since the
// caller's dedup/replace expectation cannot hold on a brand-new table.
func (ix *Indexer) Reconcile(ctx context.Context, table string, chunks []*document.Chunk, mode Mode) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}
	for _, c := range chunks {
		if c.ID == "" {
			return nil, errors.ValidationError("chunk has no id; run identity assignment first", nil).
				WithDetail("table", table)
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, withIndexContext(err, table, mode)
	}
	if len(vectors) != len(chunks) {
		return nil, errors.EmbedderError("embedder returned a short batch", nil).
			WithDetail("table", table)
	}

	records := make([]*store.Record, len(chunks))
	for i, c := range chunks {
		records[i] = &store.Record{
			ID:       c.ID,
			Vector:   vectors[i],
			Text:     c.Text,
			Metadata: c.Metadata,
		}
	}

	lock := ix.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	exists, err := ix.store.HasTable(ctx, table)
	if err != nil {
		return nil, withIndexContext(err, table, mode)
	}
	if !exists {
		if mode != ModeInsert {
			ix.logger.Warn("table missing, forcing insert mode",
				slog.String("table", table),
				slog.String("requested_mode", string(mode)))
		}
		if err := ix.store.EnsureTable(ctx, table, len(vectors[0])); err != nil {
			return nil, withIndexContext(err, table, mode)
		}
		mode = ModeInsert
	}

	written, err := ix.apply(ctx, table, records, mode)
	if err != nil {
		return nil, withIndexContext(err, table, mode)
	}

	ix.logger.Info("reconcile complete",
		slog.String("table", table),
		slog.String("mode", string(mode)),
		slog.Int("candidates", len(records)),
		slog.Int("written", len(written)))
	return written, nil
}

// apply dispatches one mode against an existing table.
func (ix *Indexer) apply(ctx context.Context, table string, records []*store.Record, mode Mode) ([]string, error) {
	switch mode {
	case ModeInsert:
		return ix.writeAll(ctx, table, records)

	case ModeDeinsert:
		ids := recordIDs(records)
		existing, err := ix.store.ExistingIDs(ctx, table, ids)
		if err != nil {
			return nil, err
		}
		fresh := records[:0:0]
		for _, r := range records {
			if _, ok := existing[r.ID]; !ok {
				fresh = append(fresh, r)
			}
		}
		return ix.writeAll(ctx, table, fresh)

	case ModeOverwrite:
		if err := ix.store.DeleteAll(ctx, table); err != nil {
			return nil, err
		}
		return ix.writeAll(ctx, table, records)

	case ModeUpsert:
		if _, err := ix.store.DeleteByID(ctx, table, recordIDs(records)); err != nil {
			return nil, err
		}
		return ix.writeAll(ctx, table, records)

	default:
		return nil, errors.New(errors.ErrCodeInvalidMode, "unhandled index mode", nil).
			WithDetail("mode", string(mode))
	}
}

func (ix *Indexer) writeAll(ctx context.Context, table string, records []*store.Record) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}
	if err := ix.store.Write(ctx, table, records); err != nil {
		return nil, err
	}
	return recordIDs(records), nil
}

func recordIDs(records []*store.Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// withIndexContext annotates a failure with the table and mode without
// changing its code.
func withIndexContext(err error, table string, mode Mode) error {
	var re *errors.RagError
	if stderrors.As(err, &re) {
		return re.WithDetail("table", table).WithDetail("mode", string(mode))
	}
	return errors.Wrap(errors.ErrCodeIndexFailed, err).
		WithDetail("table", table).
		WithDetail("mode", string(mode))
}
