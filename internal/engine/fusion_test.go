package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/continue-ai-company/aa-rag/internal/store"
)

func recs(ids ...string) []*store.Record {
	out := make([]*store.Record, len(ids))
	for i, id := range ids {
		out[i] = &store.Record{ID: id, Text: "text-" + id}
	}
	return out
}

func fusedIDs(results []*store.Record) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestFuse_EmptyInputs(t *testing.T) {
	assert.Empty(t, fuse(nil, nil, Weights{Dense: 1, Sparse: 1}, 60, 5))
}

func TestFuse_MergesSameIDAcrossLists(t *testing.T) {
	dense := recs("a", "b")
	sparse := recs("b", "c")

	results := fuse(dense, sparse, Weights{Dense: 0.5, Sparse: 0.5}, 60, 10)

	// "b" appears in both lists and must come back once, ranked first:
	// 0.5/62 + 0.5/61 beats 0.5/61 ("a") and 0.5/62 ("c").
	require.Equal(t, []string{"b", "a", "c"}, fusedIDs(results))
}

func TestFuse_AbsentListContributesZero(t *testing.T) {
	dense := recs("a")
	sparse := recs("b")

	results := fuse(dense, sparse, Weights{Dense: 1, Sparse: 1}, 60, 10)

	// Both scored from a single list at rank 1, so they tie; first arrival
	// (the dense list is processed first) breaks it.
	require.Equal(t, []string{"a", "b"}, fusedIDs(results))
}

func TestFuse_WeightsScaleContribution(t *testing.T) {
	dense := recs("d")
	sparse := recs("s")

	// Heavier sparse weight flips the order of two rank-1 results.
	results := fuse(dense, sparse, Weights{Dense: 0.1, Sparse: 0.9}, 60, 10)
	require.Equal(t, []string{"s", "d"}, fusedIDs(results))
}

func TestFuse_ZeroWeightDegeneratesToOtherList(t *testing.T) {
	dense := recs("a", "b", "c")
	sparse := recs("c", "x", "a")

	denseOnly := fuse(dense, sparse, Weights{Dense: 1, Sparse: 0}, 60, 10)
	assert.Equal(t, []string{"a", "b", "c"}, fusedIDs(denseOnly))

	sparseOnly := fuse(dense, sparse, Weights{Dense: 0, Sparse: 1}, 60, 10)
	assert.Equal(t, []string{"c", "x", "a"}, fusedIDs(sparseOnly))
}

func TestFuse_TruncatesToTopK(t *testing.T) {
	results := fuse(recs("a", "b", "c", "d"), nil, Weights{Dense: 1}, 60, 2)
	assert.Equal(t, []string{"a", "b"}, fusedIDs(results))
}

func TestFuse_Deterministic(t *testing.T) {
	dense := recs("only_dense", "both")
	sparse := recs("only_sparse", "both")

	first := fuse(dense, sparse, Weights{Dense: 1, Sparse: 1}, 60, 10)
	require.Len(t, first, 3)
	second := fuse(dense, sparse, Weights{Dense: 1, Sparse: 1}, 60, 10)
	assert.Equal(t, fusedIDs(first), fusedIDs(second))
}

func TestFuse_DefaultConstantWhenNonPositive(t *testing.T) {
	a := fuse(recs("a", "b"), nil, Weights{Dense: 1}, 0, 10)
	b := fuse(recs("a", "b"), nil, Weights{Dense: 1}, DefaultRRFConstant, 10)
	assert.Equal(t, fusedIDs(a), fusedIDs(b))
}
