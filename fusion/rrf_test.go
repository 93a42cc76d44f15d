package fusion

import (
	"testing"

	"github.com/poiesic/curata/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func list(ids ...core.ID) []core.Candidate {
	out := make([]core.Candidate, len(ids))
	for i, id := range ids {
		// Raw scores deliberately disagree with rank order.
		out[i] = core.Candidate{ItemId: id, Score: float32(i)}
	}
	return out
}

func idsOf(cands []core.Candidate) []core.ID {
	out := make([]core.ID, len(cands))
	for i, c := range cands {
		out[i] = c.ItemId
	}
	return out
}

func TestNewRanker_DefaultK(t *testing.T) {
	assert.Equal(t, DefaultK, NewRanker(0).K())
	assert.Equal(t, DefaultK, NewRanker(-3).K())
	assert.Equal(t, 10, NewRanker(10).K())
}

func TestFuse(t *testing.T) {
	tests := []struct {
		name  string
		k     int
		lists [][]core.Candidate
		want  []core.ID
	}{
		{
			name:  "disjoint lists tie at equal rank and break by lower id",
			k:     60,
			lists: [][]core.Candidate{list(5), list(3)},
			want:  []core.ID{3, 5},
		},
		{
			name:  "identical lists preserve order",
			k:     60,
			lists: [][]core.Candidate{list(9, 2, 7), list(9, 2, 7)},
			want:  []core.ID{9, 2, 7},
		},
		{
			name:  "item in both lists beats single-list items",
			k:     60,
			lists: [][]core.Candidate{list(1, 2), list(3, 2)},
			want:  []core.ID{2, 1, 3},
		},
		{
			name:  "single list passes through",
			k:     60,
			lists: [][]core.Candidate{list(4, 8, 6)},
			want:  []core.ID{4, 8, 6},
		},
		{
			name:  "duplicate within a list counts once",
			k:     60,
			lists: [][]core.Candidate{list(1, 1, 2), list(2)},
			want:  []core.ID{2, 1},
		},
		{
			name:  "no lists",
			k:     60,
			lists: nil,
			want:  []core.ID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRanker(tt.k).Fuse(tt.lists...)
			assert.Equal(t, tt.want, idsOf(got))
		})
	}
}

func TestFuse_Scores(t *testing.T) {
	got := NewRanker(60).Fuse(list(1, 2), list(2))
	require.Len(t, got, 2)

	assert.Equal(t, core.ID(2), got[0].ItemId)
	assert.InDelta(t, 1.0/62+1.0/61, got[0].Score, 1e-7)
	assert.InDelta(t, 1.0/61, got[1].Score, 1e-7)
}
