package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/continue-ai-company/aa-rag/internal/document"
	"github.com/continue-ai-company/aa-rag/internal/embed"
	"github.com/continue-ai-company/aa-rag/internal/errors"
	"github.com/continue-ai-company/aa-rag/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	return New(s, embed.NewStaticEmbedder(), Options{}), s
}

func doc(text string, meta map[string]any) *document.Document {
	return &document.Document{Text: text, Metadata: meta}
}

// testTable is the table name the test engine produces for knowledge "kb".
const testTable = "kb_hybrid_static_common"

func TestTableKey_Name(t *testing.T) {
	tests := []struct {
		name string
		key  TableKey
		want string
	}{
		{
			name: "common identifier when empty",
			key:  TableKey{Knowledge: "kb", EngineType: "hybrid", EmbeddingModel: "static"},
			want: "kb_hybrid_static_common",
		},
		{
			name: "explicit identifier",
			key:  TableKey{Knowledge: "kb", EngineType: "hybrid", EmbeddingModel: "static", Identifier: "alice"},
			want: "kb_hybrid_static_alice",
		},
		{
			name: "hyphens become underscores",
			key:  TableKey{Knowledge: "my-kb", EngineType: "hybrid", EmbeddingModel: "text-embedding-3-small"},
			want: "my_kb_hybrid_text_embedding_3_small_common",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.Name())
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"insert", "deinsert", "overwrite", "upsert"} {
		mode, err := ParseMode(valid)
		require.NoError(t, err)
		assert.Equal(t, Mode(valid), mode)
	}

	_, err := ParseMode("merge")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidMode))
}

func TestIndex_InsertWritesEveryChunk(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	written, err := e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{doc("apple pie recipe", nil)},
		Mode:      ModeInsert,
	})
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.Equal(t, document.ContentID("apple pie recipe"), written[0])

	// Insert never deduplicates: the same content lands twice.
	written, err = e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{doc("apple pie recipe", nil)},
		Mode:      ModeInsert,
	})
	require.NoError(t, err)
	require.Len(t, written, 1)

	all, err := s.ScanAll(ctx, testTable)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestIndex_DeinsertSkipsExistingIDs(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{doc("apple pie recipe", nil)},
		Mode:      ModeInsert,
	})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Indexing the same document again in deinsert mode writes nothing.
	second, err := e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{doc("apple pie recipe", nil)},
		Mode:      ModeDeinsert,
	})
	require.NoError(t, err)
	assert.Empty(t, second)

	all, err := s.ScanAll(ctx, testTable)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestIndex_DeinsertWritesOnlyNewIDs(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{
			doc("apple pie recipe", map[string]any{"id": "1"}),
			doc("banana bread recipe", map[string]any{"id": "2"}),
		},
		Mode: ModeInsert,
	})
	require.NoError(t, err)

	written, err := e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{
			doc("apple pie recipe", map[string]any{"id": "1"}),
			doc("cherry tart", map[string]any{"id": "3"}),
		},
		Mode: ModeDeinsert,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, written)
}

func TestIndex_UpsertReplacesByID(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{doc("A", map[string]any{"id": "x"})},
		Mode:      ModeInsert,
	})
	require.NoError(t, err)

	written, err := e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{doc("B", map[string]any{"id": "x"})},
		Mode:      ModeUpsert,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, written)

	all, err := s.ScanAll(ctx, testTable)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "x", all[0].ID)
	assert.Equal(t, "B", all[0].Text)
}

func TestIndex_OverwriteClearsTable(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{
			doc("old content one", nil),
			doc("old content two", nil),
		},
		Mode: ModeInsert,
	})
	require.NoError(t, err)

	_, err = e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{doc("fresh content", nil)},
		Mode:      ModeOverwrite,
	})
	require.NoError(t, err)

	all, err := s.ScanAll(ctx, testTable)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "fresh content", all[0].Text)
}

func TestIndex_MissingTableForcesInsert(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()

	// Upsert against a table that does not exist yet degrades to insert:
	// the table is created and every chunk is written.
	written, err := e.Index(ctx, IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{doc("first ever content", map[string]any{"id": "x"})},
		Mode:      ModeUpsert,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, written)

	ok, err := s.HasTable(ctx, testTable)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIndex_EmbedderFailureAborts(t *testing.T) {
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	broken := embed.NewStaticEmbedder()
	require.NoError(t, broken.Close())
	e := New(s, broken, Options{})

	_, err := e.Index(context.Background(), IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{doc("text", nil)},
		Mode:      ModeInsert,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmbedderFailed))
}

func TestIndex_InvalidChunkingRejected(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Index(context.Background(), IndexRequest{
		Knowledge:    "kb",
		Documents:    []*document.Document{doc("text", nil)},
		ChunkSize:    100,
		ChunkOverlap: 100,
		Mode:         ModeInsert,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func seedRecipes(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.Index(context.Background(), IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{
			doc("apple pie recipe", map[string]any{"id": "1"}),
			doc("banana bread recipe", map[string]any{"id": "2"}),
		},
		Mode: ModeInsert,
	})
	require.NoError(t, err)
}

func TestRetrieve_SparseOnlyExactLexicalMatchWins(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRecipes(t, e)

	results, err := e.Retrieve(context.Background(), RetrieveRequest{
		Knowledge:    "kb",
		Query:        "apple",
		TopK:         1,
		DenseWeight:  0,
		SparseWeight: 1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "apple pie recipe", results[0].Text)
	assert.Equal(t, "1", results[0].Metadata["id"])
}

func TestRetrieve_DenseOnlyMatchesDenseRetriever(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRecipes(t, e)
	ctx := context.Background()

	direct, err := e.dense.Retrieve(ctx, testTable, "apple pie", 2)
	require.NoError(t, err)

	fused, err := e.Retrieve(ctx, RetrieveRequest{
		Knowledge:   "kb",
		Query:       "apple pie",
		TopK:        2,
		DenseWeight: 1,
	})
	require.NoError(t, err)

	require.Equal(t, len(direct), len(fused))
	for i := range direct {
		assert.Equal(t, direct[i].Text, fused[i].Text, "rank %d", i)
	}
}

func TestRetrieve_SparseOnlyMatchesSparseRetriever(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRecipes(t, e)
	ctx := context.Background()

	direct, err := e.sparse.Retrieve(ctx, testTable, "recipe", 2)
	require.NoError(t, err)
	require.NotEmpty(t, direct)

	fused, err := e.Retrieve(ctx, RetrieveRequest{
		Knowledge:    "kb",
		Query:        "recipe",
		TopK:         2,
		SparseWeight: 1,
	})
	require.NoError(t, err)

	require.Equal(t, len(direct), len(fused))
	for i := range direct {
		assert.Equal(t, direct[i].Text, fused[i].Text, "rank %d", i)
	}
}

func TestRetrieve_HybridMergesByID(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRecipes(t, e)

	results, err := e.Retrieve(context.Background(), RetrieveRequest{
		Knowledge:    "kb",
		Query:        "apple pie recipe",
		TopK:         10,
		DenseWeight:  0.5,
		SparseWeight: 0.5,
	})
	require.NoError(t, err)

	// Two records exist; an id found by both retrievers appears once.
	assert.LessOrEqual(t, len(results), 2)
	seen := make(map[string]bool)
	for _, r := range results {
		id, _ := r.Metadata["id"].(string)
		assert.False(t, seen[id], "id %s duplicated in results", id)
		seen[id] = true
	}
}

func TestRetrieve_StripsIDAndVector(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRecipes(t, e)

	results, err := e.Retrieve(context.Background(), RetrieveRequest{
		Knowledge:    "kb",
		Query:        "apple",
		TopK:         1,
		SparseWeight: 1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Text)
	// Metadata carries the caller's fields; record internals stay internal.
	assert.NotContains(t, results[0].Metadata, "vector")
}

func TestRetrieve_ValidatesWeights(t *testing.T) {
	e, _ := newTestEngine(t)
	seedRecipes(t, e)
	ctx := context.Background()

	_, err := e.Retrieve(ctx, RetrieveRequest{Knowledge: "kb", Query: "q", DenseWeight: -1, SparseWeight: 1})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	_, err = e.Retrieve(ctx, RetrieveRequest{Knowledge: "kb", Query: "q"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestRetrieve_MissingTableSurfacesNotFound(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Retrieve(context.Background(), RetrieveRequest{
		Knowledge:    "ghost",
		Query:        "anything",
		DenseWeight:  0.5,
		SparseWeight: 0.5,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTableNotFound))
}

// slowStore delays ScanAll past any reasonable deadline.
type slowStore struct {
	*store.MemoryStore
	delay time.Duration
}

func (s *slowStore) ScanAll(ctx context.Context, table string) ([]*store.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
		return s.MemoryStore.ScanAll(ctx, table)
	}
}

func TestRetrieve_TimeoutSurfacesTimeoutError(t *testing.T) {
	slow := &slowStore{MemoryStore: store.NewMemoryStore(), delay: time.Second}
	t.Cleanup(func() { _ = slow.Close() })
	e := New(slow, embed.NewStaticEmbedder(), Options{RetrieveTimeout: 20 * time.Millisecond})

	_, err := e.Index(context.Background(), IndexRequest{
		Knowledge: "kb",
		Documents: []*document.Document{doc("apple pie recipe", nil)},
		Mode:      ModeInsert,
	})
	require.NoError(t, err)

	_, err = e.Retrieve(context.Background(), RetrieveRequest{
		Knowledge:    "kb",
		Query:        "apple",
		SparseWeight: 1,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRetrieveTimeout))
	assert.True(t, errors.IsRetryable(err))
}
