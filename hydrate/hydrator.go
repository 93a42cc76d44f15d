package hydrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/curata/ann"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/keyword"
	"github.com/poiesic/curata/metrics"
	"github.com/poiesic/curata/storage"
	"golang.org/x/sync/errgroup"
)

// Default lifecycle parameters.
const (
	DefaultDrainTimeout = 10 * time.Second
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 200 * time.Millisecond
)

// IndexParams sizes the vector index.
type IndexParams struct {
	Dim            int
	Capacity       int
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultIndexParams returns the parameters used when none are configured.
func DefaultIndexParams() IndexParams {
	return IndexParams{
		Dim:            64,
		Capacity:       10000,
		M:              ann.DefaultM,
		EfConstruction: ann.DefaultEfConstruction,
		EfSearch:       ann.DefaultEfSearch,
	}
}

// Admission controls request intake. The hydrator opens it once the indexes
// are verified and drains it before persisting at shutdown.
type Admission interface {
	Open()
	Drain(ctx context.Context) error
}

// recounter is implemented by stores that can repair their embedded-item
// counter from a full scan.
type recounter interface {
	RecountItems(ctx context.Context) (int, error)
}

// Hydrator reconciles the persisted vector index with the metadata store at
// startup and persists both at shutdown.
//
// The metadata store is authoritative: a missing, corrupt or stale index file
// is rebuilt from it. The keyword index is not persisted and is rebuilt on
// every start.
type Hydrator struct {
	vectors  *ann.Index
	keywords *keyword.Index
	store    storage.MetadataStore
	path     string

	params       IndexParams
	gate         Admission
	metrics      *metrics.Metrics
	logger       *slog.Logger
	batchSize    int
	maxRetries   int
	retryDelay   time.Duration
	drainTimeout time.Duration

	state      atomic.Int32
	loaded     atomic.Bool // vectors hold a complete index worth saving
	generation uint64      // embedding generation the vectors reflect
	mu         sync.Mutex  // serializes Start and Stop
}

// Option configures a Hydrator.
type Option func(*Hydrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hydrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		h.logger = logger
		return nil
	}
}

// WithIndexParams sets the vector index geometry used for loading and rebuilding.
func WithIndexParams(p IndexParams) Option {
	return func(h *Hydrator) error {
		if p.Dim <= 0 || p.Capacity <= 0 || p.M < 2 || p.EfConstruction <= 0 || p.EfSearch <= 0 {
			return fmt.Errorf("%w: %+v", ann.ErrInvalidConfig, p)
		}
		h.params = p
		return nil
	}
}

// WithGate sets the admission gate opened at Ready and drained at shutdown.
func WithGate(gate Admission) Option {
	return func(h *Hydrator) error {
		h.gate = gate
		return nil
	}
}

// WithMetrics reports state transitions and rebuilds to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hydrator) error {
		h.metrics = m
		return nil
	}
}

// WithBatchSize sets how many items are read from the store per batch.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(h *Hydrator) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		h.batchSize = size
		return nil
	}
}

// WithRetry sets the retry policy for metadata store reads.
// Default is 3 attempts starting at 200ms.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(h *Hydrator) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		h.maxRetries = maxAttempts
		h.retryDelay = baseDelay
		return nil
	}
}

// WithDrainTimeout bounds how long Stop waits for in-flight requests.
// Default is 10s.
func WithDrainTimeout(d time.Duration) Option {
	return func(h *Hydrator) error {
		if d > 0 {
			h.drainTimeout = d
		}
		return nil
	}
}

// New creates a hydrator for the given indexes, store and index file path.
func New(vectors *ann.Index, keywords *keyword.Index, store storage.MetadataStore, path string, opts ...Option) (*Hydrator, error) {
	if vectors == nil || keywords == nil {
		return nil, errors.New("indexes required")
	}
	if store == nil {
		return nil, errors.New("metadata store required")
	}
	if path == "" {
		return nil, errors.New("index path required")
	}

	h := &Hydrator{
		vectors:      vectors,
		keywords:     keywords,
		store:        store,
		path:         path,
		params:       DefaultIndexParams(),
		logger:       slog.Default(),
		batchSize:    DefaultBatchSize,
		maxRetries:   DefaultMaxRetries,
		retryDelay:   DefaultRetryDelay,
		drainTimeout: DefaultDrainTimeout,
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	h.logger = h.logger.With("component", "hydrator")
	return h, nil
}

// State returns the current lifecycle stage. Safe for concurrent use.
func (h *Hydrator) State() State {
	return State(h.state.Load())
}

// Ready reports whether requests may be served.
func (h *Hydrator) Ready() bool {
	return h.State() == StateReady
}

func (h *Hydrator) transition(to State) {
	from := State(h.state.Swap(int32(to)))
	h.logger.Info("hydration state", "from", from, "to", to)
	h.metrics.SetHydrationState(int(to))
}

// Start loads the vector index, verifies it against the metadata store,
// rebuilds what is missing or stale, and opens the admission gate.
//
// A corrupt index file is never fatal: it is logged and rebuilt. Start fails
// only when the metadata store cannot be read or a rebuild cannot be made
// consistent.
func (h *Hydrator) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s := h.State(); s != StateCold && s != StateFailed {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, s)
	}

	if err := h.start(ctx); err != nil {
		h.transition(StateFailed)
		return err
	}
	return nil
}

func (h *Hydrator) start(ctx context.Context) error {
	h.transition(StateLoading)
	rebuild := false
	status, err := h.vectors.Load(h.path, h.params.Dim, h.params.Capacity)
	switch {
	case errors.Is(err, ann.ErrCorruptIndex):
		h.logger.Warn("index file unusable, rebuilding from store", "path", h.path, "err", err)
		rebuild = true
	case err != nil:
		return fmt.Errorf("load index: %w", err)
	case status == ann.LoadStatusCreated:
		rebuild = true
	}

	h.transition(StateVerifying)
	stored, err := h.countStored(ctx)
	if err != nil {
		return err
	}
	current, recorded, err := h.generations(ctx)
	if err != nil {
		return err
	}
	if !rebuild {
		indexed, err := h.vectors.Count()
		if err != nil {
			return fmt.Errorf("count index: %w", err)
		}
		switch {
		case indexed != stored:
			h.logger.Warn("index out of sync with store, rebuilding", "indexed", indexed, "stored", stored)
			rebuild = true
		case recorded != current:
			h.logger.Warn("embeddings replaced since index was saved, rebuilding",
				"index_generation", recorded, "store_generation", current)
			rebuild = true
		}
	}

	if rebuild {
		h.transition(StateRebuilding)
		h.loaded.Store(false)
		if err := h.rebuild(ctx, stored); err != nil {
			return err
		}
		h.generation = current
		h.loaded.Store(true)
	} else {
		h.transition(StateConsistent)
		h.generation = recorded
		h.loaded.Store(true)
		if err := h.fill(ctx, false, stored); err != nil {
			return err
		}
	}

	if err := h.vectors.SetSearchBreadth(h.params.EfSearch); err != nil {
		return err
	}

	indexed, _ := h.vectors.Count()
	h.metrics.SetIndexEntries("vector", indexed)
	h.metrics.SetIndexEntries("keyword", h.keywords.Count())

	h.transition(StateReady)
	if h.gate != nil {
		h.gate.Open()
	}
	return nil
}

func (h *Hydrator) countStored(ctx context.Context) (int, error) {
	var stored int
	err := RetryWithBackoff(ctx, func() error {
		var err error
		stored, err = h.store.CountItems(ctx)
		return err
	}, h.maxRetries, h.retryDelay)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return stored, nil
}

// generations returns the store's embedding generation and the one recorded
// for the persisted index.
func (h *Hydrator) generations(ctx context.Context) (current, recorded uint64, err error) {
	err = RetryWithBackoff(ctx, func() error {
		var err error
		if current, err = h.store.EmbeddingGeneration(ctx); err != nil {
			return err
		}
		recorded, err = h.store.IndexGeneration(ctx)
		return err
	}, h.maxRetries, h.retryDelay)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return current, recorded, nil
}

// rebuild replaces the vector index with one built from the store, then
// checks that both agree.
func (h *Hydrator) rebuild(ctx context.Context, stored int) error {
	start := time.Now()
	capacity := max(h.params.Capacity, stored+stored/4+1)
	if err := h.vectors.Init(h.params.Dim, capacity, h.params.M, h.params.EfConstruction); err != nil {
		return fmt.Errorf("init index: %w", err)
	}

	if err := h.fill(ctx, true, stored); err != nil {
		return err
	}

	indexed, err := h.vectors.Count()
	if err != nil {
		return err
	}
	stored, err = h.countStored(ctx)
	if err != nil {
		return err
	}
	if indexed != stored {
		rc, ok := h.store.(recounter)
		if !ok {
			return fmt.Errorf("%w: indexed %d, stored %d", ErrRebuildMismatch, indexed, stored)
		}
		h.logger.Warn("store counter disagrees with its contents, recounting", "indexed", indexed, "counter", stored)
		if stored, err = rc.RecountItems(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		if indexed != stored {
			return fmt.Errorf("%w: indexed %d, stored %d", ErrRebuildMismatch, indexed, stored)
		}
	}

	h.metrics.ObserveRebuild(time.Since(start))
	h.logger.Info("index rebuilt", "count", indexed, "capacity", capacity, "duration", time.Since(start))
	return nil
}

// fill streams every stored item into the keyword index and, when vectors is
// set, into the vector index. A single reader feeds both consumers.
func (h *Hydrator) fill(ctx context.Context, vectors bool, expected int) error {
	h.keywords.Reset()

	tracker := NewProgressTracker(h.logger, "index fill", expected, 0)
	tracker.Start()

	g, gctx := errgroup.WithContext(ctx)
	keywordCh := make(chan []*core.Item, 2)
	var vectorCh chan []*core.Item
	if vectors {
		vectorCh = make(chan []*core.Item, 2)
	}

	g.Go(func() error {
		defer close(keywordCh)
		if vectorCh != nil {
			defer close(vectorCh)
		}
		it := NewItemIterator(h.store, h.batchSize).WithRetry(h.maxRetries, h.retryDelay)
		err := it.ForEach(gctx, func(batch []*core.Item) error {
			if err := send(gctx, keywordCh, batch); err != nil {
				return err
			}
			if vectorCh != nil {
				return send(gctx, vectorCh, batch)
			}
			return nil
		})
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		return err
	})

	g.Go(func() error {
		for batch := range keywordCh {
			for _, item := range batch {
				h.keywords.AddItem(item)
			}
		}
		return nil
	})

	var skipped atomic.Int64
	if vectorCh != nil {
		g.Go(func() error {
			for batch := range vectorCh {
				added := 0
				for _, item := range batch {
					if !item.HasEmbedding() {
						skipped.Add(1)
						continue
					}
					if err := h.vectors.AddItem(item.Id, item.Embedding); err != nil {
						return fmt.Errorf("index item %d: %w", item.Id, err)
					}
					added++
				}
				tracker.Increment(added)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if vectors {
		tracker.Finish()
	}
	if n := skipped.Load(); n > 0 {
		h.logger.Info("items without embeddings not indexed", "count", n)
	}
	return nil
}

func send(ctx context.Context, ch chan<- []*core.Item, batch []*core.Item) error {
	select {
	case ch <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes admissions, waits a bounded time for in-flight requests, then
// saves the vector index and flushes the store. Persistence errors are
// returned wrapped in ErrPersistenceFailure; the caller should treat them as
// fatal.
func (h *Hydrator) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch s := h.State(); s {
	case StateShuttingDown, StateFlushed:
		return fmt.Errorf("%w: stop from %s", ErrInvalidState, s)
	}

	h.transition(StateShuttingDown)

	if h.gate != nil {
		drainCtx, cancel := context.WithTimeout(ctx, h.drainTimeout)
		err := h.gate.Drain(drainCtx)
		cancel()
		if err != nil {
			h.logger.Warn("drain incomplete, persisting anyway", "timeout", h.drainTimeout, "err", err)
		}
	}

	var errs []error
	if h.loaded.Load() {
		if err := h.vectors.Save(h.path); err != nil {
			h.logger.Error("error saving index", "path", h.path, "err", err)
			errs = append(errs, fmt.Errorf("%w: %w", ErrPersistenceFailure, err))
		} else if err := h.store.SetIndexGeneration(ctx, h.generation); err != nil {
			h.logger.Error("error recording index generation", "err", err)
			errs = append(errs, fmt.Errorf("%w: record index generation: %w", ErrPersistenceFailure, err))
		}
	}
	if err := h.store.Flush(); err != nil {
		h.logger.Error("error flushing store", "err", err)
		errs = append(errs, fmt.Errorf("%w: flush store: %w", ErrPersistenceFailure, err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	h.transition(StateFlushed)
	return nil
}
