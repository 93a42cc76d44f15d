package ingestion

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/poiesic/curata/ai/mock"
	"github.com/poiesic/curata/ann"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/keyword"
	"github.com/poiesic/curata/metrics"
	"github.com/poiesic/curata/storage/badger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 16

type fixture struct {
	store    *badger.Store
	vectors  *ann.Index
	keywords *keyword.Index
	embedder *mock.MockEmbedder
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	vectors, err := ann.New(ann.WithSeed(11))
	require.NoError(t, err)
	require.NoError(t, vectors.Init(testDim, capacity, 8, 64))

	embedder := mock.NewMockEmbedder()
	embedder.Dim = testDim

	return &fixture{store: store, vectors: vectors, keywords: keyword.New(), embedder: embedder}
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(f.store, f.vectors, f.keywords, mock.NewMockProviderWithEmbedder(f.embedder), opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestNewPipeline_Validation(t *testing.T) {
	f := newFixture(t, 10)
	provider := mock.NewMockProvider()

	_, err := NewPipeline(nil, f.vectors, f.keywords, provider)
	assert.ErrorIs(t, err, ErrStoreRequired)
	_, err = NewPipeline(f.store, nil, f.keywords, provider)
	assert.ErrorIs(t, err, ErrVectorIndexRequired)
	_, err = NewPipeline(f.store, f.vectors, nil, provider)
	assert.ErrorIs(t, err, ErrKeywordIndexRequired)
	_, err = NewPipeline(f.store, f.vectors, f.keywords, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = NewPipeline(f.store, f.vectors, f.keywords, provider, WithBatchSize(0))
	assert.Error(t, err)
}

func TestAddItems_EmbedsStoresAndIndexes(t *testing.T) {
	f := newFixture(t, 100)
	m := metrics.New()
	p := f.pipeline(t, WithBatchSize(3), WithPoolSize(2), WithMetrics(m))
	ctx := context.Background()

	items := make([]*core.Item, 10)
	for i := range items {
		items[i] = &core.Item{Id: core.ID(i + 1), Title: "garden hose", Category: core.CategoryHome}
	}
	items[9].Title = "hardcover atlas"
	items[9].Category = core.CategoryBooks

	stored, err := p.AddItems(ctx, items...)
	require.NoError(t, err)
	assert.Len(t, stored, 10)
	assert.Equal(t, 4, f.embedder.CallCount(), "ten items in batches of three")
	assert.Equal(t, 10, f.embedder.TextCount())

	count, err := f.store.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	indexed, err := f.vectors.Count()
	require.NoError(t, err)
	assert.Equal(t, 10, indexed)
	assert.Equal(t, 10, f.keywords.Count())

	got, err := f.store.GetItem(ctx, 10)
	require.NoError(t, err)
	assert.True(t, core.IsNormalized(got.Embedding, core.NormTolerance))
	assert.Equal(t, []core.ID{10}, []core.ID{f.keywords.Search("atlas", 5)[0].ItemId})

	expected := `
# HELP curata_items_ingested_total Total number of items added through ingestion
# TYPE curata_items_ingested_total counter
curata_items_ingested_total 10
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "curata_items_ingested_total"))
}

func TestAddItems_KeepsProvidedEmbeddings(t *testing.T) {
	f := newFixture(t, 10)
	p := f.pipeline(t)
	rng := rand.New(rand.NewPCG(5, 5))

	raw := core.CategoryAnchor(core.CategoryClothing, testDim)
	item := &core.Item{Id: 1, Title: "wool coat", Category: core.CategoryClothing, Embedding: raw}
	_, err := p.AddItems(context.Background(), item,
		&core.Item{Id: 2, Title: "linen shirt", Category: core.CategoryClothing, Embedding: core.CategoryEmbedding(core.CategoryClothing, testDim, rng)},
	)
	require.NoError(t, err)
	assert.Zero(t, f.embedder.CallCount())

	got, err := f.store.GetItem(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, core.Dot(got.Embedding, core.Normalize(raw)), 1e-5, "provided vectors are normalized")

	res, err := f.vectors.SearchKNN(core.Normalize(raw), 1)
	require.NoError(t, err)
	assert.Equal(t, core.ID(1), res[0].ItemId)
}

func TestAddItems_RejectsInvalidItems(t *testing.T) {
	f := newFixture(t, 10)
	p := f.pipeline(t)
	ctx := context.Background()

	tests := []struct {
		name string
		item *core.Item
		want error
	}{
		{"zero id", &core.Item{Title: "x", Category: core.CategoryHome}, core.ErrZeroID},
		{"empty title", &core.Item{Id: 1, Category: core.CategoryHome}, core.ErrEmptyTitle},
		{"bad category", &core.Item{Id: 1, Title: "x", Category: 42}, core.ErrInvalidCategory},
		{"negative popularity", &core.Item{Id: 1, Title: "x", Category: core.CategoryHome, Popularity: -2}, core.ErrInvalidPopularity},
		{"wrong dimension", &core.Item{Id: 1, Title: "x", Category: core.CategoryHome, Embedding: []float32{1, 0}}, core.ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.AddItems(ctx, tt.item)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	count, err := f.store.CountItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "nothing stored when validation fails")
}

func TestAddItems_EmbeddingFailure(t *testing.T) {
	f := newFixture(t, 10)
	f.embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("provider down")
	}
	p := f.pipeline(t)

	_, err := p.AddItems(context.Background(), &core.Item{Id: 1, Title: "lamp", Category: core.CategoryHome})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	f.embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{}, nil
	}
	_, err = p.AddItems(context.Background(), &core.Item{Id: 1, Title: "lamp", Category: core.CategoryHome})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)

	_, err = f.store.GetItem(context.Background(), 1)
	assert.Error(t, err)
}

func TestAddItems_ReplacementMarksIndexStale(t *testing.T) {
	f := newFixture(t, 10)
	p := f.pipeline(t)
	ctx := context.Background()

	_, err := p.AddItems(ctx, &core.Item{Id: 1, Title: "desk lamp", Category: core.CategoryHome})
	require.NoError(t, err)
	_, err = p.AddItems(ctx, &core.Item{Id: 1, Title: "floor lamp", Category: core.CategoryHome, Popularity: 3})
	require.NoError(t, err)

	count, err := f.vectors.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Empty(t, f.keywords.Search("desk", 5), "keyword entry replaced")
	assert.Len(t, f.keywords.Search("floor", 5), 1)

	// The vector index cannot drop the old entry; the store records the
	// replacement so the next start rebuilds.
	gen, err := f.store.EmbeddingGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	_, err = p.AddItems(ctx, &core.Item{Id: 1, Title: "floor lamp", Category: core.CategoryHome, Popularity: 4})
	require.NoError(t, err)
	gen, err = f.store.EmbeddingGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen, "same text embeds to the same vector")
}

func TestAddItems_CapacityExceededKeepsStore(t *testing.T) {
	f := newFixture(t, 2)
	p := f.pipeline(t)
	ctx := context.Background()

	items := []*core.Item{
		{Id: 1, Title: "a lamp", Category: core.CategoryHome},
		{Id: 2, Title: "a rug", Category: core.CategoryHome},
		{Id: 3, Title: "a vase", Category: core.CategoryHome},
	}
	stored, err := p.AddItems(ctx, items...)
	assert.ErrorIs(t, err, ErrIndexUpdateFailed)
	assert.ErrorIs(t, err, ann.ErrCapacityExceeded)
	assert.Len(t, stored, 3)

	count, err := f.store.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "store is ahead of the index")
}

func TestAddUsers(t *testing.T) {
	f := newFixture(t, 10)
	p := f.pipeline(t)
	ctx := context.Background()

	raw := core.CategoryAnchor(core.CategoryBooks, testDim)
	stored, err := p.AddUsers(ctx, &core.User{Id: 7, Name: "reader", Embedding: raw})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	got, err := f.store.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.True(t, core.IsNormalized(got.Embedding, core.NormTolerance))

	_, err = p.AddUsers(ctx, &core.User{Id: 8, Name: "no prefs"})
	assert.ErrorIs(t, err, core.ErrInvalidUser)
	_, err = p.AddUsers(ctx, &core.User{Id: 9, Embedding: []float32{1, 0, 0}})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	empty, err := p.AddUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
