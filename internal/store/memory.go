package store

import (
	"context"
	"sort"
	"sync"

	"github.com/continue-ai-company/aa-rag/internal/document"
	"github.com/continue-ai-company/aa-rag/internal/errors"
)

// MemoryStore keeps all records in process memory. It backs tests and
// short-lived CLI runs where persistence is not wanted. Search is exact
// brute-force cosine, which makes it the reference behavior the SQLite
// store's approximate index is judged against.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	closed bool
}

type memTable struct {
	dimensions int
	records    []*Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*memTable)}
}

func (s *MemoryStore) table(name string) (*memTable, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, errors.TableNotFound(name)
	}
	return t, nil
}

// EnsureTable creates the table if missing and records its dimension.
func (s *MemoryStore) EnsureTable(_ context.Context, table string, dimensions int) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if dimensions <= 0 {
		return errors.ValidationError("table dimension must be positive", nil).
			WithDetail("table", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.StoreError("store is closed", nil)
	}

	if existing, ok := s.tables[table]; ok {
		if existing.dimensions != dimensions {
			return errors.New(errors.ErrCodeDimensionMismatch,
				"table exists with a different dimension", nil).
				WithDetail("table", table)
		}
		return nil
	}
	s.tables[table] = &memTable{dimensions: dimensions}
	return nil
}

// HasTable reports whether the table exists.
func (s *MemoryStore) HasTable(_ context.Context, table string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[table]
	return ok, nil
}

// Dimensions returns the table's embedding dimension.
func (s *MemoryStore) Dimensions(_ context.Context, table string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}
	return t.dimensions, nil
}

// ExistingIDs returns the subset of ids already present in the table.
func (s *MemoryStore) ExistingIDs(_ context.Context, table string, ids []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	present := make(map[string]struct{})
	for _, r := range t.records {
		if _, ok := wanted[r.ID]; ok {
			present[r.ID] = struct{}{}
		}
	}
	return present, nil
}

// Write appends records to the table without deduplicating.
func (s *MemoryStore) Write(_ context.Context, table string, records []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return err
	}

	for _, r := range records {
		if len(r.Vector) != t.dimensions {
			return errors.New(errors.ErrCodeDimensionMismatch,
				"record vector does not match table dimension", nil).
				WithDetail("table", table).
				WithDetail("id", r.ID)
		}
	}
	for _, r := range records {
		t.records = append(t.records, cloneRecord(r))
	}
	return nil
}

// DeleteByID removes every row whose id is in ids.
func (s *MemoryStore) DeleteByID(_ context.Context, table string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return 0, err
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := t.records[:0]
	removed := 0
	for _, r := range t.records {
		if _, ok := drop[r.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	t.records = kept
	return removed, nil
}

// DeleteAll removes every row, keeping the table.
func (s *MemoryStore) DeleteAll(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(table)
	if err != nil {
		return err
	}
	t.records = nil
	return nil
}

// SearchVector returns up to topK records by descending cosine similarity.
// Ties keep insertion order, so results are deterministic.
func (s *MemoryStore) SearchVector(_ context.Context, table string, query []float32, topK int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}
	if len(query) != t.dimensions {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			"query vector does not match table dimension", nil).
			WithDetail("table", table)
	}
	if topK <= 0 {
		return []*Record{}, nil
	}

	type scored struct {
		rec   *Record
		score float64
		order int
	}
	candidates := make([]scored, 0, len(t.records))
	for i, r := range t.records {
		candidates = append(candidates, scored{rec: r, score: CosineSimilarity(query, r.Vector), order: i})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]*Record, 0, topK)
	for _, c := range candidates[:topK] {
		results = append(results, cloneRecord(c.rec))
	}
	return results, nil
}

// ScanAll returns every record in insertion order.
func (s *MemoryStore) ScanAll(_ context.Context, table string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	results := make([]*Record, 0, len(t.records))
	for _, r := range t.records {
		results = append(results, cloneRecord(r))
	}
	return results, nil
}

// ListTables returns the names of all tables, sorted.
func (s *MemoryStore) ListTables(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tables = make(map[string]*memTable)
	return nil
}

// cloneRecord copies a record so callers cannot alias store internals.
func cloneRecord(r *Record) *Record {
	vec := make([]float32, len(r.Vector))
	copy(vec, r.Vector)
	return &Record{
		ID:       r.ID,
		Vector:   vec,
		Text:     r.Text,
		Metadata: document.CloneMetadata(r.Metadata),
	}
}
