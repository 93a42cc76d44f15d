package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/curata/ai"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/metrics"
	"github.com/poiesic/curata/search"
	"github.com/poiesic/curata/storage"
	"golang.org/x/time/rate"
)

// Operation names reported to metrics.
const (
	OpRecommend      = "recommend"
	OpSearch         = "search"
	OpSearchKeywords = "search_keywords"
	OpMarkSeen       = "mark_seen"
	OpSetPopularity  = "set_popularity"
	OpGetItem        = "get_item"
)

// Service is the request-facing surface of the engine. Every call passes the
// readiness gate and runs on a bounded worker pool.
type Service struct {
	gate     *Gate
	pipeline *search.Pipeline
	store    storage.MetadataStore
	embedder ai.Embedder
	dim      int
	pool     *ants.Pool
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithEmbedder enables vector search over query text. Query vectors are
// normalized and must have dim entries; a dim of zero skips the length check.
// Without an embedder Search falls back to keyword recall.
func WithEmbedder(embedder ai.Embedder, dim int) Option {
	return func(s *Service) error {
		s.embedder = embedder
		s.dim = dim
		return nil
	}
}

// WithWorkers sets the number of requests executed concurrently.
// Default is runtime.NumCPU().
func WithWorkers(size int) Option {
	return func(s *Service) error {
		if size < 1 {
			size = 1
		}
		pool, err := newPool(size)
		if err != nil {
			return err
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithRateLimit caps admitted requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Service) error {
		if perSecond <= 0 {
			s.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithMetrics records request counts and latencies in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) error {
		s.metrics = m
		return nil
	}
}

// New creates a service. The gate decides when requests are admitted; it is
// normally opened by the hydrator.
func New(gate *Gate, pipeline *search.Pipeline, store storage.MetadataStore, opts ...Option) (*Service, error) {
	if gate == nil {
		return nil, ErrGateRequired
	}
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	pool, err := newPool(runtime.NumCPU())
	if err != nil {
		return nil, err
	}

	s := &Service{
		gate:     gate,
		pipeline: pipeline,
		store:    store,
		pool:     pool,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Release()
			return nil, err
		}
	}

	return s, nil
}

// Ready reports whether requests are being admitted.
func (s *Service) Ready() bool {
	return s.gate.Ready()
}

// Gate returns the readiness gate.
func (s *Service) Gate() *Gate {
	return s.gate
}

// Release stops the worker pool. Call it after the gate has drained.
func (s *Service) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Recommend ranks unseen items for a user by preference similarity blended
// with popularity.
func (s *Service) Recommend(ctx context.Context, userID core.ID, k int) (*core.RankedResult, error) {
	var result *core.RankedResult
	err := s.execute(ctx, OpRecommend, func(ctx context.Context) error {
		user, err := s.store.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
			}
			return err
		}
		seen, err := s.store.GetSeen(ctx, userID)
		if err != nil {
			return err
		}
		result, err = s.pipeline.Run(ctx, search.Request{
			Vector:  user.Embedding,
			K:       k,
			Exclude: seen,
		}, nil)
		return err
	})
	return result, err
}

// Search ranks items for free text. With an embedder configured, vector and
// keyword recall are fused; otherwise only keyword recall is used.
func (s *Service) Search(ctx context.Context, text string, k int) (*core.RankedResult, error) {
	var result *core.RankedResult
	err := s.execute(ctx, OpSearch, func(ctx context.Context) error {
		req := search.Request{Text: text, K: k}
		if s.embedder != nil && text != "" {
			vec, err := s.embedQuery(ctx, text)
			if err != nil {
				return err
			}
			req.Vector = vec
		}
		var err error
		result, err = s.pipeline.Run(ctx, req, nil)
		return err
	})
	return result, err
}

// SearchKeywords ranks items for free text using keyword recall only.
func (s *Service) SearchKeywords(ctx context.Context, text string, k int) (*core.RankedResult, error) {
	var result *core.RankedResult
	err := s.execute(ctx, OpSearchKeywords, func(ctx context.Context) error {
		var err error
		result, err = s.pipeline.Run(ctx, search.Request{Text: text, K: k}, nil)
		return err
	})
	return result, err
}

// MarkSeen records that a user has seen items. Seen items are excluded from
// later recommendations.
func (s *Service) MarkSeen(ctx context.Context, userID core.ID, itemIDs ...core.ID) error {
	return s.execute(ctx, OpMarkSeen, func(ctx context.Context) error {
		err := s.store.MarkSeen(ctx, userID, itemIDs...)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return err
	})
}

// SetPopularity overwrites the raw popularity of an item.
func (s *Service) SetPopularity(ctx context.Context, itemID core.ID, value float32) error {
	return s.execute(ctx, OpSetPopularity, func(ctx context.Context) error {
		if err := core.ValidatePopularity(value); err != nil {
			return err
		}
		err := s.store.SetPopularity(ctx, itemID, value)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrItemNotFound, itemID)
		}
		return err
	})
}

// GetItem returns the stored item.
func (s *Service) GetItem(ctx context.Context, itemID core.ID) (*core.Item, error) {
	var item *core.Item
	err := s.execute(ctx, OpGetItem, func(ctx context.Context) error {
		var err error
		item, err = s.store.GetItem(ctx, itemID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrItemNotFound, itemID)
		}
		return err
	})
	return item, err
}

func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		s.logger.Error("error embedding query", "err", err)
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	vec = core.Normalize(vec)
	if err := core.ValidateEmbedding(vec, s.dim); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

// execute admits fn through the gate and runs it on the pool. The gate slot
// is held until fn returns, even when the caller stops waiting.
func (s *Service) execute(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()

	release, err := s.gate.Enter()
	if err != nil {
		s.metrics.ObserveRequest(op, metrics.OutcomeNotReady, time.Since(start))
		return err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			release()
			s.metrics.ObserveRequest(op, metrics.OutcomeError, time.Since(start))
			return err
		}
	}

	done := make(chan error, 1)
	err = s.submit(ctx, func() {
		defer release()
		done <- fn(ctx)
	})
	if err != nil {
		release()
		if ctx.Err() == nil {
			s.logger.Error("error submitting request", "op", op, "err", err)
		}
		s.metrics.ObserveRequest(op, metrics.OutcomeError, time.Since(start))
		return err
	}

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	s.metrics.ObserveRequest(op, outcome, time.Since(start))
	return err
}

// Backoff between attempts to hand a request to a busy pool.
const (
	submitBackoff    = time.Millisecond
	maxSubmitBackoff = 20 * time.Millisecond
)

// newPool returns a pool whose Submit fails fast with ants.ErrPoolOverload
// instead of blocking, so waiting for a worker can honour the caller's ctx.
func newPool(size int) (*ants.Pool, error) {
	return ants.NewPool(size, ants.WithNonblocking(true))
}

// submit hands task to the pool, retrying while every worker is busy until
// ctx ends.
func (s *Service) submit(ctx context.Context, task func()) error {
	backoff := submitBackoff
	for {
		err := s.pool.Submit(task)
		if !errors.Is(err, ants.ErrPoolOverload) {
			return err
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxSubmitBackoff)
	}
}
