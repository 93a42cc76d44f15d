package badger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testItem(id core.ID, embedded bool) *core.Item {
	item := &core.Item{
		Id:         id,
		Title:      "item",
		Category:   core.CategoryBooks,
		Popularity: float32(id),
	}
	if embedded {
		item.Embedding = []float32{1, 0, 0, 0}
	}
	return item
}

func TestStore_PutAndGetItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	added, err := store.PutItems(ctx, testItem(1, true))
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.False(t, added[0].InsertedAt.IsZero())

	got, err := store.GetItem(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "item", got.Title)
	assert.Equal(t, []float32{1, 0, 0, 0}, got.Embedding)

	_, err = store.GetItem(ctx, 2)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestStore_PutItems_RejectsZeroID(t *testing.T) {
	store := newTestStore(t)
	_, err := store.PutItems(context.Background(), testItem(0, true))
	assert.ErrorIs(t, err, core.ErrZeroID)
}

func TestStore_PutItems_PreservesInsertedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.PutItems(ctx, testItem(1, true))
	require.NoError(t, err)
	first, err := store.GetItem(ctx, 1)
	require.NoError(t, err)

	update := testItem(1, true)
	update.Title = "renamed"
	_, err = store.PutItems(ctx, update)
	require.NoError(t, err)

	second, err := store.GetItem(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "renamed", second.Title)
	assert.Equal(t, first.InsertedAt, second.InsertedAt)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}

func TestStore_CountItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.PutItems(ctx, testItem(1, true), testItem(2, true), testItem(3, false))
	require.NoError(t, err)

	count, err := store.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "items without embeddings are not counted")

	// Replacing an embedded item keeps the count stable.
	_, err = store.PutItems(ctx, testItem(1, true))
	require.NoError(t, err)
	count, err = store.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Embedding a previously bare item increments it.
	_, err = store.PutItems(ctx, testItem(3, true))
	require.NoError(t, err)
	count, err = store.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	recount, err := store.RecountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, recount)
}

func TestStore_EmbeddingGeneration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	generation := func() uint64 {
		t.Helper()
		gen, err := store.EmbeddingGeneration(ctx)
		require.NoError(t, err)
		return gen
	}

	_, err := store.PutItems(ctx, testItem(1, true), testItem(2, false))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), generation(), "new items do not advance the generation")

	_, err = store.PutItems(ctx, testItem(1, true))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), generation(), "identical embedding")

	_, err = store.PutItems(ctx, testItem(2, true))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), generation(), "first embedding for a bare item")

	changed := testItem(1, true)
	changed.Embedding = []float32{0, 1, 0, 0}
	other := testItem(2, true)
	other.Embedding = []float32{0, 0, 1, 0}
	_, err = store.PutItems(ctx, changed, other)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), generation())
}

func TestStore_IndexGeneration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	gen, err := store.IndexGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gen)

	require.NoError(t, store.SetIndexGeneration(ctx, 7))
	gen, err = store.IndexGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), gen)

	current, err := store.EmbeddingGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), current, "recording the index does not touch item state")
}

func TestStore_AllItemsInIDOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.PutItems(ctx, testItem(300, true), testItem(2, true), testItem(70000, true))
	require.NoError(t, err)

	var ids []core.ID
	err = store.AllItems(ctx, func(item *core.Item) error {
		ids = append(ids, item.Id)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{2, 300, 70000}, ids)

	stop := errors.New("stop")
	calls := 0
	err = store.AllItems(ctx, func(item *core.Item) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStore_ItemsAfter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for id := core.ID(1); id <= 5; id++ {
		_, err := store.PutItems(ctx, testItem(id, true))
		require.NoError(t, err)
	}

	batch, err := store.ItemsAfter(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, core.ID(1), batch[0].Id)
	assert.Equal(t, core.ID(2), batch[1].Id)

	batch, err = store.ItemsAfter(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, core.ID(5), batch[0].Id)

	batch, err = store.ItemsAfter(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)

	_, err = store.ItemsAfter(ctx, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestStore_GetItems_SkipsMissing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.PutItems(ctx, testItem(1, true), testItem(3, true))
	require.NoError(t, err)

	items, err := store.GetItems(ctx, 3, 2, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, core.ID(3), items[0].Id)
	assert.Equal(t, core.ID(1), items[1].Id)
}

func TestStore_Popularity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.PutItems(ctx, testItem(4, true))
	require.NoError(t, err)

	pop, err := store.GetPopularity(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, float32(4), pop)

	require.NoError(t, store.SetPopularity(ctx, 4, 9.5))
	pop, err = store.GetPopularity(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, float32(9.5), pop)

	assert.ErrorIs(t, store.SetPopularity(ctx, 99, 1), storage.ErrNotFound)
	assert.ErrorIs(t, store.SetPopularity(ctx, 4, -2), core.ErrInvalidPopularity)
	_, err = store.GetPopularity(ctx, 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Users(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.PutUsers(ctx, &core.User{Id: 10, Name: "ada", Embedding: []float32{0, 1}})
	require.NoError(t, err)

	user, err := store.GetUser(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Name)

	_, err = store.GetUser(ctx, 11)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.PutUsers(ctx, &core.User{})
	assert.ErrorIs(t, err, core.ErrZeroID)
}

func TestStore_MarkSeen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.PutUsers(ctx, &core.User{Id: 10, Embedding: []float32{0, 1}})
	require.NoError(t, err)

	seen, err := store.GetSeen(ctx, 10)
	require.NoError(t, err)
	assert.True(t, seen.IsEmpty())

	require.NoError(t, store.MarkSeen(ctx, 10, 1, 2))
	require.NoError(t, store.MarkSeen(ctx, 10, 2, 3))
	require.NoError(t, store.MarkSeen(ctx, 10))

	seen, err = store.GetSeen(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, seen.ToArray())

	assert.ErrorIs(t, store.MarkSeen(ctx, 77, 1), storage.ErrNotFound)

	seen, err = store.GetSeen(ctx, 77)
	require.NoError(t, err)
	assert.True(t, seen.IsEmpty())
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()

	store, err := OpenStore(dir, false, nil)
	require.NoError(t, err)
	_, err = store.PutItems(ctx, testItem(1, true), testItem(2, true))
	require.NoError(t, err)
	_, err = store.PutUsers(ctx, &core.User{Id: 5, Embedding: []float32{1}})
	require.NoError(t, err)
	require.NoError(t, store.MarkSeen(ctx, 5, 2))
	require.NoError(t, store.Flush())
	require.NoError(t, store.Close())

	store, err = OpenStore(dir, false, nil)
	require.NoError(t, err)
	defer store.Close()

	count, err := store.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	seen, err := store.GetSeen(ctx, 5)
	require.NoError(t, err)
	assert.True(t, seen.Contains(2))
}
