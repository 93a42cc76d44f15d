package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/curata/ai"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/metrics"
	"github.com/poiesic/curata/storage"
)

// DefaultBatchSize is the number of texts sent to the embedder per call.
const DefaultBatchSize = 32

// VectorIndex receives embedded items.
type VectorIndex interface {
	AddItem(id core.ID, vec []float32) error
	Contains(id core.ID) bool
	Dim() int
}

// KeywordIndex receives item text.
type KeywordIndex interface {
	AddItem(item *core.Item)
}

// Pipeline orchestrates the ingestion of items and users.
// It embeds items concurrently, stores them, then updates both indexes.
type Pipeline struct {
	store         storage.MetadataStore
	vectors       VectorIndex
	keywords      KeywordIndex
	embeddingPool *ants.Pool
	embeddingProc processor
	batchSize     int
	dim           int
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}

		embeddingPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embeddingPool = embeddingPool
		return nil
	}
}

// WithBatchSize sets how many items are embedded per embedder call.
// Default is 32.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// WithDimension sets the required embedding length.
// Default is the vector index dimension at the time of each call.
func WithDimension(dim int) Option {
	return func(p *Pipeline) error {
		p.dim = dim
		return nil
	}
}

// WithMetrics counts ingested items in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	store storage.MetadataStore,
	vectors VectorIndex,
	keywords KeywordIndex,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorIndexRequired
	}
	if keywords == nil {
		return nil, ErrKeywordIndexRequired
	}
	if provider == nil {
		return nil, ErrEmbedderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	embeddingPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Create pipeline with defaults
	p := &Pipeline{
		store:         store,
		vectors:       vectors,
		keywords:      keywords,
		embeddingPool: embeddingPool,
		batchSize:     DefaultBatchSize,
		logger:        slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	// Create processors after options are applied (so they get final config)
	embeddingProc, err := newEmbeddingProcessor(provider.Embedder(), p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.embeddingProc = embeddingProc

	return p, nil
}

// AddItems embeds items that lack an embedding, validates and stores all of
// them, then adds them to the indexes. Items already present in the vector
// index keep their indexed vector while running; the store records the
// replaced embedding and the next start rebuilds the index.
func (p *Pipeline) AddItems(ctx context.Context, items ...*core.Item) ([]*core.Item, error) {
	if len(items) == 0 {
		return []*core.Item{}, nil
	}

	dim := p.dimension()
	for _, item := range items {
		if err := core.ValidateItem(item, 0); err != nil && !isEmbeddingError(err) {
			return nil, err
		}
	}

	if err := p.embedMissing(ctx, items); err != nil {
		return nil, err
	}

	for _, item := range items {
		item.Embedding = core.Normalize(item.Embedding)
		if err := core.ValidateItem(item, dim); err != nil {
			return nil, err
		}
	}

	stored, err := p.store.PutItems(ctx, items...)
	if err != nil {
		p.logger.Error("error storing items", "items", len(items), "err", err)
		return nil, err
	}

	var indexErrs []error
	for _, item := range stored {
		p.keywords.AddItem(item)
		if p.vectors.Contains(item.Id) {
			p.logger.Debug("item already indexed, keeping existing vector", "item", item.Id)
			continue
		}
		if err := p.vectors.AddItem(item.Id, item.Embedding); err != nil {
			indexErrs = append(indexErrs, fmt.Errorf("item %d: %w", item.Id, err))
		}
	}
	p.metrics.AddIngested(len(stored))

	if len(indexErrs) > 0 {
		err := errors.Join(indexErrs...)
		p.logger.Warn("stored items could not be indexed", "failed", len(indexErrs), "err", err)
		return stored, fmt.Errorf("%w: %w", ErrIndexUpdateFailed, err)
	}

	p.logger.Info("ingested items", "items", len(stored))
	return stored, nil
}

// AddUsers normalizes, validates and stores users.
func (p *Pipeline) AddUsers(ctx context.Context, users ...*core.User) ([]*core.User, error) {
	if len(users) == 0 {
		return []*core.User{}, nil
	}

	dim := p.dimension()
	for _, user := range users {
		if user != nil {
			user.Embedding = core.Normalize(user.Embedding)
		}
		if err := core.ValidateUser(user, dim); err != nil {
			return nil, err
		}
	}

	stored, err := p.store.PutUsers(ctx, users...)
	if err != nil {
		p.logger.Error("error storing users", "users", len(users), "err", err)
		return nil, err
	}
	return stored, nil
}

// embedMissing embeds items without an embedding in batches on the pool and
// waits for every batch.
func (p *Pipeline) embedMissing(ctx context.Context, items []*core.Item) error {
	var pending []*core.Item
	for _, item := range items {
		if !item.HasEmbedding() {
			pending = append(pending, item)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for start := 0; start < len(pending); start += p.batchSize {
		batch := pending[start:min(start+p.batchSize, len(pending))]
		wg.Add(1)
		err := p.embeddingPool.Submit(func() {
			defer wg.Done()
			if err := p.embeddingProc.process(ctx, batch...); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (p *Pipeline) dimension() int {
	if p.dim > 0 {
		return p.dim
	}
	return p.vectors.Dim()
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}

func isEmbeddingError(err error) bool {
	return errors.Is(err, core.ErrDimensionMismatch) || errors.Is(err, core.ErrNotNormalized)
}
