// Package fusion merges ranked candidate lists with reciprocal-rank fusion.
package fusion

import (
	"cmp"
	"slices"

	"github.com/poiesic/curata/core"
)

// DefaultK is the RRF smoothing constant used when none is configured.
const DefaultK = 60

// Ranker fuses best-first candidate lists. It is stateless and safe for
// concurrent use.
type Ranker struct {
	k int
}

// NewRanker returns a Ranker with smoothing constant k. Values <= 0 select DefaultK.
func NewRanker(k int) *Ranker {
	if k <= 0 {
		k = DefaultK
	}
	return &Ranker{k: k}
}

// K returns the smoothing constant.
func (r *Ranker) K() int {
	return r.k
}

// Fuse combines lists by summing 1/(K + rank + 1) for every list an id
// appears in, where rank is the 0-based position in that list. Raw scores
// are ignored. The result is ordered by fused score, highest first, with
// ties broken by ascending id. An id repeated within one list counts only
// at its best rank.
func (r *Ranker) Fuse(lists ...[]core.Candidate) []core.Candidate {
	type fused struct {
		id    core.ID
		score float64
	}

	scores := make(map[core.ID]float64)
	for _, list := range lists {
		seen := make(map[core.ID]struct{}, len(list))
		for rank, c := range list {
			if _, dup := seen[c.ItemId]; dup {
				continue
			}
			seen[c.ItemId] = struct{}{}
			scores[c.ItemId] += 1.0 / float64(r.k+rank+1)
		}
	}

	all := make([]fused, 0, len(scores))
	for id, s := range scores {
		all = append(all, fused{id: id, score: s})
	}
	slices.SortFunc(all, func(a, b fused) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	out := make([]core.Candidate, len(all))
	for i, f := range all {
		out[i] = core.Candidate{ItemId: f.id, Score: float32(f.score)}
	}
	return out
}
