package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/continue-ai-company/aa-rag/internal/errors"
)

// SQLite store layout constants.
const (
	dbFileName   = "aarag.db"
	lockFileName = "aarag.lock"
	registry     = "_tables"
)

// HNSW tuning. M and EfSearch follow the library's recommendations for
// small-to-medium corpora.
const (
	hnswM        = 16
	hnswEfSearch = 64
)

// SQLiteStore persists records in a single SQLite database, one SQL table
// per logical table plus a registry of dimensions. Vector search runs
// against an in-memory HNSW graph per table, built lazily from the rows and
// keyed by rowid; any mutation that can invalidate the graph drops it.
//
// The driver is pure Go (modernc.org/sqlite), so the binary stays CGO-free.
type SQLiteStore struct {
	db   *sql.DB
	lock *flock.Flock

	mu     sync.Mutex
	graphs map[string]*tableGraph
	closed bool
}

// tableGraph is the cached vector index of one table. hnsw.Graph has no
// internal locking, so every Search/Add/Lookup goes through mu: searches
// take the read lock, incremental adds the write lock.
type tableGraph struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[int64]
	dimensions int
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database under dataDir and takes an
// advisory file lock so two processes never share the same data directory.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.StoreError("create data directory", err)
	}

	lock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.StoreError("acquire data directory lock", err)
	}
	if !locked {
		return nil, errors.StoreError("data directory is locked by another process", nil).
			WithDetail("dir", dataDir)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, dbFileName))
	if err != nil {
		_ = lock.Unlock()
		return nil, errors.StoreError("open database", err)
	}
	// modernc.org/sqlite serializes statements per connection; a single
	// connection avoids SQLITE_BUSY under concurrent table operations.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, errors.StoreError("apply pragma", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (name TEXT PRIMARY KEY, dimensions INTEGER NOT NULL)`,
		registry)); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, errors.StoreError("create table registry", err)
	}

	return &SQLiteStore{
		db:     db,
		lock:   lock,
		graphs: make(map[string]*tableGraph),
	}, nil
}

// EnsureTable creates the table if missing and records its dimension.
func (s *SQLiteStore) EnsureTable(ctx context.Context, table string, dimensions int) error {
	if err := ValidateTableName(table); err != nil {
		return err
	}
	if dimensions <= 0 {
		return errors.ValidationError("table dimension must be positive", nil).
			WithDetail("table", table)
	}

	existing, err := s.registeredDimensions(ctx, table)
	if err != nil && !errors.IsCode(err, errors.ErrCodeTableNotFound) {
		return err
	}
	if err == nil {
		if existing != dimensions {
			return errors.New(errors.ErrCodeDimensionMismatch,
				"table exists with a different dimension", nil).
				WithDetail("table", table)
		}
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %q (
			id TEXT NOT NULL,
			vector BLOB NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`, table)); err != nil {
		return errors.StoreError("create table", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %q ON %q (id)`, table+"_id_idx", table)); err != nil {
		return errors.StoreError("create id index", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`INSERT OR IGNORE INTO %q (name, dimensions) VALUES (?, ?)`, registry),
		table, dimensions); err != nil {
		return errors.StoreError("register table", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError("commit table creation", err)
	}
	return nil
}

// registeredDimensions looks the table up in the registry.
func (s *SQLiteStore) registeredDimensions(ctx context.Context, table string) (int, error) {
	var dims int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT dimensions FROM %q WHERE name = ?`, registry), table).Scan(&dims)
	if err == sql.ErrNoRows {
		return 0, errors.TableNotFound(table)
	}
	if err != nil {
		return 0, errors.New(errors.ErrCodeStoreRead, "read table registry", err)
	}
	return dims, nil
}

// HasTable reports whether the table exists.
func (s *SQLiteStore) HasTable(ctx context.Context, table string) (bool, error) {
	_, err := s.registeredDimensions(ctx, table)
	if errors.IsCode(err, errors.ErrCodeTableNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Dimensions returns the table's embedding dimension.
func (s *SQLiteStore) Dimensions(ctx context.Context, table string) (int, error) {
	return s.registeredDimensions(ctx, table)
}

// ExistingIDs returns the subset of ids already present in the table.
func (s *SQLiteStore) ExistingIDs(ctx context.Context, table string, ids []string) (map[string]struct{}, error) {
	if _, err := s.registeredDimensions(ctx, table); err != nil {
		return nil, err
	}
	present := make(map[string]struct{})
	if len(ids) == 0 {
		return present, nil
	}

	stmt, err := s.db.PrepareContext(ctx, fmt.Sprintf(
		`SELECT 1 FROM %q WHERE id = ? LIMIT 1`, table))
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "prepare id lookup", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, id := range ids {
		var one int
		err := stmt.QueryRowContext(ctx, id).Scan(&one)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, errors.New(errors.ErrCodeStoreRead, "look up id", err)
		}
		present[id] = struct{}{}
	}
	return present, nil
}

// Write appends records to the table without deduplicating. When the table's
// graph is cached, new rows are added to it incrementally.
func (s *SQLiteStore) Write(ctx context.Context, table string, records []*Record) error {
	dims, err := s.registeredDimensions(ctx, table)
	if err != nil {
		return err
	}
	for _, r := range records {
		if len(r.Vector) != dims {
			return errors.New(errors.ErrCodeDimensionMismatch,
				"record vector does not match table dimension", nil).
				WithDetail("table", table).
				WithDetail("id", r.ID)
		}
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %q (id, vector, text, metadata) VALUES (?, ?, ?, ?)`, table))
	if err != nil {
		return errors.StoreError("prepare insert", err)
	}
	defer func() { _ = stmt.Close() }()

	rowids := make([]int64, 0, len(records))
	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return errors.StoreError("encode metadata", err).WithDetail("id", r.ID)
		}
		res, err := stmt.ExecContext(ctx, r.ID, EncodeVector(r.Vector), r.Text, string(meta))
		if err != nil {
			return errors.StoreError("insert record", err).WithDetail("id", r.ID)
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return errors.StoreError("read rowid", err)
		}
		rowids = append(rowids, rowid)
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError("commit write", err)
	}

	s.mu.Lock()
	tg, ok := s.graphs[table]
	s.mu.Unlock()
	if ok {
		tg.mu.Lock()
		for i, r := range records {
			// A concurrent search may have rebuilt the graph after the
			// commit and already picked these rows up.
			if _, exists := tg.graph.Lookup(rowids[i]); exists {
				continue
			}
			tg.graph.Add(hnsw.MakeNode(rowids[i], normalizedCopy(r.Vector)))
		}
		tg.mu.Unlock()
	}
	return nil
}

// DeleteByID removes every row whose id is in ids.
func (s *SQLiteStore) DeleteByID(ctx context.Context, table string, ids []string) (int, error) {
	if _, err := s.registeredDimensions(ctx, table); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	stmt, err := s.db.PrepareContext(ctx, fmt.Sprintf(
		`DELETE FROM %q WHERE id = ?`, table))
	if err != nil {
		return 0, errors.StoreError("prepare delete", err)
	}
	defer func() { _ = stmt.Close() }()

	removed := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return removed, errors.StoreError("delete record", err).WithDetail("id", id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, errors.StoreError("count deleted rows", err)
		}
		removed += int(n)
	}

	if removed > 0 {
		s.dropGraph(table)
	}
	return removed, nil
}

// DeleteAll removes every row, keeping the table.
func (s *SQLiteStore) DeleteAll(ctx context.Context, table string) error {
	if _, err := s.registeredDimensions(ctx, table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q`, table)); err != nil {
		return errors.StoreError("clear table", err)
	}
	s.dropGraph(table)
	return nil
}

// SearchVector returns up to topK records by descending cosine similarity,
// answered from the table's HNSW graph.
func (s *SQLiteStore) SearchVector(ctx context.Context, table string, query []float32, topK int) ([]*Record, error) {
	dims, err := s.registeredDimensions(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(query) != dims {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			"query vector does not match table dimension", nil).
			WithDetail("table", table)
	}
	if topK <= 0 {
		return []*Record{}, nil
	}

	tg, err := s.graphFor(ctx, table, dims)
	if err != nil {
		return nil, err
	}

	tg.mu.RLock()
	var nodes []hnsw.Node[int64]
	if tg.graph.Len() > 0 {
		nodes = tg.graph.Search(normalizedCopy(query), topK)
	}
	tg.mu.RUnlock()
	if len(nodes) == 0 {
		return []*Record{}, nil
	}

	results := make([]*Record, 0, len(nodes))
	for _, node := range nodes {
		rec, err := s.recordByRowid(ctx, table, node.Key)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

// graphFor returns the table's cached graph, building it from the rows when
// absent.
func (s *SQLiteStore) graphFor(ctx context.Context, table string, dims int) (*tableGraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.StoreError("store is closed", nil)
	}
	if tg, ok := s.graphs[table]; ok {
		return tg, nil
	}

	graph := hnsw.NewGraph[int64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = hnswM
	graph.EfSearch = hnswEfSearch

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT rowid, vector FROM %q ORDER BY rowid`, table))
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "scan vectors", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var rowid int64
		var blob []byte
		if err := rows.Scan(&rowid, &blob); err != nil {
			return nil, errors.New(errors.ErrCodeStoreRead, "scan vector row", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		graph.Add(hnsw.MakeNode(rowid, normalizedCopy(vec)))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "iterate vector rows", err)
	}

	tg := &tableGraph{graph: graph, dimensions: dims}
	s.graphs[table] = tg
	return tg, nil
}

// recordByRowid fetches and decodes one row.
func (s *SQLiteStore) recordByRowid(ctx context.Context, table string, rowid int64) (*Record, error) {
	var (
		id   string
		blob []byte
		text string
		meta string
	)
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, vector, text, metadata FROM %q WHERE rowid = ?`, table), rowid).
		Scan(&id, &blob, &text, &meta)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "read record", err)
	}
	return decodeRecord(id, blob, text, meta)
}

// ScanAll returns every record in insertion order.
func (s *SQLiteStore) ScanAll(ctx context.Context, table string) ([]*Record, error) {
	if _, err := s.registeredDimensions(ctx, table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, vector, text, metadata FROM %q ORDER BY rowid`, table))
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "scan table", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Record
	for rows.Next() {
		var (
			id   string
			blob []byte
			text string
			meta string
		)
		if err := rows.Scan(&id, &blob, &text, &meta); err != nil {
			return nil, errors.New(errors.ErrCodeStoreRead, "scan record row", err)
		}
		rec, err := decodeRecord(id, blob, text, meta)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "iterate record rows", err)
	}
	return results, nil
}

// ListTables returns the names of all registered tables, sorted.
func (s *SQLiteStore) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT name FROM %q ORDER BY name`, registry))
	if err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "list tables", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.New(errors.ErrCodeStoreRead, "scan table name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeStoreRead, "iterate table names", err)
	}
	return names, nil
}

// Close closes the database and releases the directory lock.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.graphs = nil
	s.mu.Unlock()

	dbErr := s.db.Close()
	lockErr := s.lock.Unlock()
	if dbErr != nil {
		return errors.StoreError("close database", dbErr)
	}
	if lockErr != nil {
		return errors.StoreError("release directory lock", lockErr)
	}
	return nil
}

func (s *SQLiteStore) dropGraph(table string) {
	s.mu.Lock()
	delete(s.graphs, table)
	s.mu.Unlock()
}

func decodeRecord(id string, blob []byte, text, meta string) (*Record, error) {
	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, err
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(meta), &metadata); err != nil {
		return nil, errors.New(errors.ErrCodeStoreCorrupt, "decode record metadata", err).
			WithDetail("id", id)
	}
	return &Record{ID: id, Vector: vec, Text: text, Metadata: metadata}, nil
}

// normalizedCopy returns a unit-length copy for cosine distance.
func normalizedCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sumSquares float64
	for _, x := range out {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return out
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range out {
		out[i] *= inv
	}
	return out
}
