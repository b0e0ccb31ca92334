// Package store persists chunk records per table and answers vector
// similarity queries. Tables are cheap named namespaces; a table's name
// encodes the knowledge base, engine, and embedding model it belongs to, so
// records of different dimensionality never share a table.
package store

import (
	"context"
	"encoding/binary"
	"math"
	"regexp"

	"github.com/continue-ai-company/aa-rag/internal/errors"
)

// Record is one stored chunk: content-addressed id, embedding, text, and
// caller metadata. The id column is deliberately not unique; insert mode may
// write the same id twice.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// Store is the persistence capability the engine depends on.
// Implementations must treat each table independently; an operation on one
// table never observes another.
type Store interface {
	// EnsureTable creates the table if missing and records its dimension.
	EnsureTable(ctx context.Context, table string, dimensions int) error

	// HasTable reports whether the table exists.
	HasTable(ctx context.Context, table string) (bool, error)

	// Dimensions returns the table's embedding dimension.
	Dimensions(ctx context.Context, table string) (int, error)

	// ExistingIDs returns the subset of ids already present in the table.
	ExistingIDs(ctx context.Context, table string, ids []string) (map[string]struct{}, error)

	// Write appends records to the table. It does not deduplicate.
	Write(ctx context.Context, table string, records []*Record) error

	// DeleteByID removes every row whose id is in ids and returns how many
	// rows were removed.
	DeleteByID(ctx context.Context, table string, ids []string) (int, error)

	// DeleteAll removes every row from the table, keeping the table itself.
	DeleteAll(ctx context.Context, table string) error

	// SearchVector returns up to topK records ordered by descending cosine
	// similarity to the query.
	SearchVector(ctx context.Context, table string, query []float32, topK int) ([]*Record, error)

	// ScanAll returns every record in the table in insertion order.
	ScanAll(ctx context.Context, table string) ([]*Record, error)

	// ListTables returns the names of all tables.
	ListTables(ctx context.Context) ([]string, error)

	// Close releases the store's resources.
	Close() error
}

// tableNameRegex constrains table names to what engine.TableKey produces.
// Names reach SQL as identifiers, so this doubles as injection protection.
var tableNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidateTableName rejects names that cannot be used as a table identifier.
func ValidateTableName(table string) error {
	if table == "" {
		return errors.ValidationError("table name must not be empty", nil)
	}
	if !tableNameRegex.MatchString(table) {
		return errors.ValidationError("table name may only contain letters, digits, and underscores", nil).
			WithDetail("table", table)
	}
	return nil
}

// EncodeVector serializes a vector as little-endian float32 bytes.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector deserializes little-endian float32 bytes into a vector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New(errors.ErrCodeStoreCorrupt, "vector blob length is not a multiple of 4", nil)
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
