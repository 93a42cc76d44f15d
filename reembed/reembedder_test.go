package reembed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/curata/ai/mock"
	"github.com/poiesic/curata/hydrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 4
	cfg.ReportInterval = 5
	cfg.RetryDelay = time.Millisecond
	cfg.Dimension = testDim
	return cfg
}

func TestNewReembedder_Validation(t *testing.T) {
	store := setupTestStore(t)
	embedder := mock.NewMockEmbedder()

	_, err := NewReembedder(nil, embedder, nil, nil)
	assert.ErrorIs(t, err, ErrRepositoryRequired)
	_, err = NewReembedder(store, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	cfg := testConfig()
	cfg.BatchSize = 0
	_, err = NewReembedder(store, embedder, cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = testConfig()
	cfg.MaxRetries = 0
	_, err = NewReembedder(store, embedder, cfg, nil)
	assert.ErrorIs(t, err, hydrate.ErrInvalidMaxAttempts)

	r, err := NewReembedder(store, embedder, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, r.config.BatchSize)
}

func TestReembedder_Run(t *testing.T) {
	store := setupTestStore(t)
	putItems(t, store, 10)
	embedder := mock.NewMockEmbedder()
	embedder.Dim = testDim

	indexPath := filepath.Join(t.TempDir(), "items.idx")
	require.NoError(t, os.WriteFile(indexPath, []byte("stale"), 0o644))

	cfg := testConfig()
	cfg.IndexPath = indexPath
	r, err := NewReembedder(store, embedder, cfg, nil)
	require.NoError(t, err)

	n, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, 3, embedder.CallCount(), "ten items in batches of four")

	want, err := embedder.EmbedText(context.Background(), "item Home")
	require.NoError(t, err)
	got, err := store.GetItem(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, want, got.Embedding)

	_, err = os.Stat(indexPath)
	assert.True(t, os.IsNotExist(err), "stale index removed")

	count, err := store.CountItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func TestReembedder_EmptyStore(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	r, err := NewReembedder(setupTestStore(t), embedder, testConfig(), nil)
	require.NoError(t, err)

	n, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.CallCount())
}

func TestReembedder_MissingIndexFileIsFine(t *testing.T) {
	store := setupTestStore(t)
	putItems(t, store, 2)
	cfg := testConfig()
	cfg.IndexPath = filepath.Join(t.TempDir(), "never-written.idx")
	embedder := mock.NewMockEmbedder()
	embedder.Dim = testDim

	r, err := NewReembedder(store, embedder, cfg, nil)
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	assert.NoError(t, err)
}

func TestReembedder_StopsOnBatchFailure(t *testing.T) {
	store := setupTestStore(t)
	putItems(t, store, 10)
	calls := 0
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("quota exhausted")
		}
		return unnormalized(ctx, texts)
	}

	indexPath := filepath.Join(t.TempDir(), "items.idx")
	require.NoError(t, os.WriteFile(indexPath, []byte("stale"), 0o644))
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.IndexPath = indexPath

	r, err := NewReembedder(store, embedder, cfg, nil)
	require.NoError(t, err)
	n, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, 4, n, "first batch completed")

	_, err = os.Stat(indexPath)
	assert.NoError(t, err, "index kept when the run fails")
}

func TestReembedder_ContextCanceled(t *testing.T) {
	store := setupTestStore(t)
	putItems(t, store, 3)
	r, err := NewReembedder(store, mock.NewMockEmbedder(), testConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
