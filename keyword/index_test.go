package keyword

import (
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/curata/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases and trims", "Hello, World!", []string{"hello", "world"}},
		{"drops stop words", "the art of the deal", []string{"art", "deal"}},
		{"empty", "   ", []string{}},
		{"punctuation only", "-- !!", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestSearch_RanksByBM25(t *testing.T) {
	idx := New()
	idx.Add(1, "wireless headphones Electronics")
	idx.Add(2, "wireless mouse Electronics")
	idx.Add(3, "cotton shirt Clothing")

	res := idx.Search("wireless headphones", 10)
	require.Len(t, res, 2)
	assert.Equal(t, core.ID(1), res[0].ItemId, "matches both terms")
	assert.Equal(t, core.ID(2), res[1].ItemId)
	assert.Greater(t, res[0].Score, res[1].Score)

	res = idx.Search("clothing", 10)
	require.Len(t, res, 1)
	assert.Equal(t, core.ID(3), res[0].ItemId)
}

func TestSearch_TiesBreakByLowerID(t *testing.T) {
	idx := New()
	idx.Add(9, "lamp Home")
	idx.Add(4, "lamp Home")
	idx.Add(6, "lamp Home")

	res := idx.Search("lamp", 10)
	require.Len(t, res, 3)
	assert.Equal(t, []core.ID{4, 6, 9}, []core.ID{res[0].ItemId, res[1].ItemId, res[2].ItemId})
}

func TestSearch_TruncatesToK(t *testing.T) {
	idx := New()
	for i := 1; i <= 20; i++ {
		idx.Add(core.ID(i), fmt.Sprintf("novel volume %d Books", i))
	}
	assert.Len(t, idx.Search("novel", 5), 5)
	assert.Empty(t, idx.Search("novel", 0))
	assert.Empty(t, idx.Search("submarine", 5))
}

func TestSearch_PrefixMatch(t *testing.T) {
	idx := New()
	idx.Add(1, "headphones")
	idx.Add(2, "headphones headphones")
	idx.Add(3, "toaster")

	res := idx.Search("head", 10)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Contains(t, []core.ID{1, 2}, r.ItemId)
	}

	assert.Empty(t, idx.Search("he", 10), "short tokens do not prefix-match")
}

func TestAdd_ReplacesDocument(t *testing.T) {
	idx := New()
	idx.Add(1, "red chair")
	idx.Add(1, "blue sofa")

	assert.Equal(t, 1, idx.Count())
	assert.Empty(t, idx.Search("chair", 10))
	res := idx.Search("sofa", 10)
	require.Len(t, res, 1)
	assert.Equal(t, core.ID(1), res[0].ItemId)
}

func TestDeleteAndReset(t *testing.T) {
	idx := New()
	idx.AddItem(&core.Item{Id: 1, Title: "Desk lamp", Category: core.CategoryHome})
	idx.AddItem(&core.Item{Id: 2, Title: "Desk chair", Category: core.CategoryHome})

	idx.Delete(1)
	idx.Delete(42)
	assert.Equal(t, 1, idx.Count())
	res := idx.Search("desk", 10)
	require.Len(t, res, 1)
	assert.Equal(t, core.ID(2), res[0].ItemId)

	idx.Reset()
	assert.Zero(t, idx.Count())
	assert.Empty(t, idx.Search("desk", 10))
}

func TestSearch_EmptyDocuments(t *testing.T) {
	idx := New()
	idx.Add(1, "the")
	assert.Empty(t, idx.Search("the", 10))
}

func TestConcurrentAccess(t *testing.T) {
	idx := New()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				idx.Add(core.ID(w*100+i+1), fmt.Sprintf("item %d garden", i))
				_ = idx.Search("garden", 5)
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 400, idx.Count())
}
