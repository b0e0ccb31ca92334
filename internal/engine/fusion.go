package engine

import (
	"sort"

	"github.com/continue-ai-company/aa-rag/internal/store"
)

// DefaultRRFConstant is the standard reciprocal-rank-fusion smoothing
// parameter; k=60 is the widely validated default.
const DefaultRRFConstant = 60

// Weights scales each ranking's contribution to the fused score. Zeroing a
// weight degenerates fusion to the other ranking, which is how dense-only
// and sparse-only retrieval are expressed.
type Weights struct {
	Dense  float64
	Sparse float64
}

// fusedCandidate accumulates one id's fused score.
type fusedCandidate struct {
	record     *store.Record
	score      float64
	denseRank  int // 1-indexed, 0 if absent
	sparseRank int // 1-indexed, 0 if absent
	arrival    int // first-seen order, the final tie-break
}

// fuse merges the dense and sparse rankings with weighted reciprocal rank
// fusion: score(d) = denseWeight/(k+denseRank) + sparseWeight/(k+sparseRank).
// An id absent from a list contributes zero from that list. Identity across
// lists is the record id; an id in both lists becomes one output entry.
// Output is sorted by fused score descending, truncated to topK.
func fuse(dense, sparse []*store.Record, weights Weights, k, topK int) []*store.Record {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	if len(dense) == 0 && len(sparse) == 0 {
		return []*store.Record{}
	}

	candidates := make(map[string]*fusedCandidate, len(dense)+len(sparse))
	arrival := 0
	get := func(r *store.Record) *fusedCandidate {
		if c, ok := candidates[r.ID]; ok {
			return c
		}
		c := &fusedCandidate{record: r, arrival: arrival}
		arrival++
		candidates[r.ID] = c
		return c
	}

	for rank, r := range dense {
		c := get(r)
		if c.denseRank == 0 {
			c.denseRank = rank + 1
			c.score += weights.Dense / float64(k+rank+1)
		}
	}
	for rank, r := range sparse {
		c := get(r)
		if c.sparseRank == 0 {
			c.sparseRank = rank + 1
			c.score += weights.Sparse / float64(k+rank+1)
		}
	}

	// A zero fused score means every list the id appeared in was
	// weight-zeroed; keeping such ids would leak the muted ranking into
	// dense-only or sparse-only results.
	ordered := make([]*fusedCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.score > 0 {
			ordered = append(ordered, c)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.score != b.score {
			return a.score > b.score
		}
		// Ties: prefer ids present in both lists, then first arrival.
		aBoth := a.denseRank > 0 && a.sparseRank > 0
		bBoth := b.denseRank > 0 && b.sparseRank > 0
		if aBoth != bBoth {
			return aBoth
		}
		return a.arrival < b.arrival
	})

	if topK > len(ordered) {
		topK = len(ordered)
	}
	results := make([]*store.Record, 0, topK)
	for _, c := range ordered[:topK] {
		results = append(results, c.record)
	}
	return results
}
