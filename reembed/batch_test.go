package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/curata/ai/mock"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

func setupTestStore(t *testing.T) *badger.Store {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func putItems(t *testing.T, store *badger.Store, n int) []*core.Item {
	t.Helper()
	items := make([]*core.Item, n)
	for i := range items {
		items[i] = &core.Item{
			Id:        core.ID(i + 1),
			Title:     "item",
			Category:  core.CategoryHome,
			Embedding: core.Normalize(core.CategoryAnchor(core.CategoryBooks, testDim)),
		}
	}
	_, err := store.PutItems(context.Background(), items...)
	require.NoError(t, err)
	return items
}

// unnormalized returns vectors of magnitude 3 so tests can see normalization.
func unnormalized(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, testDim)
		v[0], v[1], v[2] = 1, 2, 2
		result[i] = v
	}
	return result, nil
}

func TestBatchProcessor_Process(t *testing.T) {
	store := setupTestStore(t)
	items := putItems(t, store, 3)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = unnormalized

	bp := NewBatchProcessor(store, embedder, testDim, 3, time.Millisecond)
	require.NoError(t, bp.Process(context.Background(), items))

	for _, item := range items {
		got, err := store.GetItem(context.Background(), item.Id)
		require.NoError(t, err)
		assert.InDelta(t, 1.0/3.0, got.Embedding[0], 1e-6)
		assert.InDelta(t, 2.0/3.0, got.Embedding[1], 1e-6)
		assert.True(t, core.IsNormalized(got.Embedding, core.NormTolerance))
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	bp := NewBatchProcessor(setupTestStore(t), embedder, testDim, 3, time.Millisecond)
	require.NoError(t, bp.Process(context.Background(), nil))
	assert.Zero(t, embedder.CallCount())
}

func TestBatchProcessor_RetriesTransientFailures(t *testing.T) {
	store := setupTestStore(t)
	items := putItems(t, store, 2)
	attempts := 0
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("temporary failure")
		}
		return unnormalized(ctx, texts)
	}

	bp := NewBatchProcessor(store, embedder, testDim, 3, time.Millisecond)
	require.NoError(t, bp.Process(context.Background(), items))
	assert.Equal(t, 3, attempts)
}

func TestBatchProcessor_Failures(t *testing.T) {
	tests := []struct {
		name  string
		embed func(ctx context.Context, texts []string) ([][]float32, error)
		want  error
	}{
		{
			name: "persistent error",
			embed: func(context.Context, []string) ([][]float32, error) {
				return nil, errors.New("down")
			},
			want: ErrEmbeddingFailed,
		},
		{
			name: "count mismatch",
			embed: func(context.Context, []string) ([][]float32, error) {
				return [][]float32{{1}}, nil
			},
			want: ErrEmbeddingFailed,
		},
		{
			name: "wrong dimension",
			embed: func(_ context.Context, texts []string) ([][]float32, error) {
				out := make([][]float32, len(texts))
				for i := range out {
					out[i] = []float32{1, 0}
				}
				return out, nil
			},
			want: core.ErrDimensionMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)
			items := putItems(t, store, 2)
			embedder := mock.NewMockEmbedder()
			embedder.EmbedTextsFunc = tt.embed

			bp := NewBatchProcessor(store, embedder, testDim, 2, time.Millisecond)
			assert.ErrorIs(t, bp.Process(context.Background(), items), tt.want)
		})
	}
}
