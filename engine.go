// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package curata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/poiesic/curata/ai"
	"github.com/poiesic/curata/ai/anchor"
	"github.com/poiesic/curata/ai/openai"
	"github.com/poiesic/curata/ann"
	"github.com/poiesic/curata/config"
	"github.com/poiesic/curata/fusion"
	"github.com/poiesic/curata/httpapi"
	"github.com/poiesic/curata/hydrate"
	"github.com/poiesic/curata/ingestion"
	"github.com/poiesic/curata/keyword"
	"github.com/poiesic/curata/metrics"
	"github.com/poiesic/curata/reembed"
	"github.com/poiesic/curata/search"
	"github.com/poiesic/curata/service"
	"github.com/poiesic/curata/storage"
	"github.com/poiesic/curata/storage/badger"
)

// ErrEngineRunning is returned by offline maintenance on a started engine.
var ErrEngineRunning = errors.New("engine already started")

// Engine owns every component of a running instance. Components are created
// in Open and released in reverse order by Close.
type Engine struct {
	cfg       *config.Config
	store     *badger.Store
	vectors   *ann.Index
	keywords  *keyword.Index
	provider  ai.AIProvider
	metrics   *metrics.Metrics
	gate      *service.Gate
	hydrator  *hydrate.Hydrator
	pipeline  *search.Pipeline
	service   *service.Service
	ingestion *ingestion.Pipeline
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger   *slog.Logger
	provider ai.AIProvider
	metrics  *metrics.Metrics
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithProvider supplies the embedding provider instead of building one from
// the embedding configuration. The engine takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithMetrics supplies the collectors. Default is a fresh metrics.New().
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *engineOptions) {
		o.metrics = m
	}
}

// Open creates an engine from cfg. The engine serves nothing until Start.
func Open(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Apply options
	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}
	m := options.metrics
	if m == nil {
		m = metrics.New()
	}

	e := &Engine{
		cfg:      cfg,
		keywords: keyword.New(),
		metrics:  m,
		gate:     service.NewGate(),
		logger:   logger,
	}
	if err := e.build(options.provider); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) build(provider ai.AIProvider) error {
	cfg := e.cfg
	var err error

	e.store, err = badger.OpenStore(cfg.Store.Path, cfg.Store.InMemory, e.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	if provider == nil {
		provider, err = NewProvider(cfg.AI())
		if err != nil {
			return err
		}
	}
	e.provider = provider

	annOpts := []ann.Option{ann.WithLogger(e.logger), ann.WithCompression(cfg.Compression())}
	if cfg.Index.Seed != 0 {
		annOpts = append(annOpts, ann.WithSeed(cfg.Index.Seed))
	}
	e.vectors, err = ann.New(annOpts...)
	if err != nil {
		return err
	}

	e.hydrator, err = hydrate.New(e.vectors, e.keywords, e.store, cfg.Index.Path,
		hydrate.WithLogger(e.logger),
		hydrate.WithIndexParams(hydrate.IndexParams{
			Dim:            cfg.Index.Dim,
			Capacity:       cfg.Index.Capacity,
			M:              cfg.Index.M,
			EfConstruction: cfg.Index.EfConstruction,
			EfSearch:       cfg.Index.EfSearch,
		}),
		hydrate.WithGate(e.gate),
		hydrate.WithMetrics(e.metrics),
		hydrate.WithBatchSize(cfg.Service.HydrateBatchSize),
		hydrate.WithRetry(cfg.Service.MaxRetries, cfg.Service.RetryDelay),
		hydrate.WithDrainTimeout(cfg.Service.DrainTimeout),
	)
	if err != nil {
		return err
	}

	e.pipeline, err = search.NewPipeline(e.vectors, e.keywords, e.store,
		search.WithLogger(e.logger),
		search.WithAlpha(cfg.Ranking.Alpha),
		search.WithRecallMargin(cfg.Ranking.RecallMargin),
		search.WithFusion(fusion.NewRanker(cfg.Ranking.RRFK)),
		search.WithMetrics(e.metrics),
	)
	if err != nil {
		return err
	}

	svcOpts := []service.Option{
		service.WithLogger(e.logger),
		service.WithEmbedder(e.provider.Embedder(), cfg.Index.Dim),
		service.WithRateLimit(cfg.Service.RateLimit, cfg.Service.RateBurst),
		service.WithMetrics(e.metrics),
	}
	if cfg.Service.Workers > 0 {
		svcOpts = append(svcOpts, service.WithWorkers(cfg.Service.Workers))
	}
	e.service, err = service.New(e.gate, e.pipeline, e.store, svcOpts...)
	if err != nil {
		return err
	}

	ingestOpts := []ingestion.Option{
		ingestion.WithLogger(e.logger),
		ingestion.WithBatchSize(cfg.Embedding.BatchSize),
		ingestion.WithDimension(cfg.Index.Dim),
		ingestion.WithMetrics(e.metrics),
	}
	if cfg.Embedding.Workers > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithPoolSize(cfg.Embedding.Workers))
	}
	e.ingestion, err = ingestion.NewPipeline(e.store, e.vectors, e.keywords, e.provider, ingestOpts...)
	return err
}

// NewProvider builds the embedding provider named by cfg.Provider.
func NewProvider(cfg *ai.Config) (ai.AIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ai.ProviderAnchor:
		return anchor.NewProvider(cfg)
	default:
		return openai.NewProvider(cfg)
	}
}

// Start hydrates the indexes and opens the service to requests.
func (e *Engine) Start(ctx context.Context) error {
	return e.hydrator.Start(ctx)
}

// Stop drains in-flight requests, persists the vector index and flushes the store.
func (e *Engine) Stop(ctx context.Context) error {
	return e.hydrator.Stop(ctx)
}

// Close releases every component. Call Stop first to persist the index.
func (e *Engine) Close() error {
	if e.service != nil {
		e.service.Release()
	}
	if e.ingestion != nil {
		e.ingestion.Release()
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
		}
	}
	if e.vectors != nil {
		e.vectors.Destroy()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Error("error closing store", "err", err)
			return err
		}
	}
	return nil
}

// Rebuild discards the persisted vector index and builds a new one from the
// store, then persists it. The engine ends stopped.
func (e *Engine) Rebuild(ctx context.Context) error {
	if e.hydrator.State() != hydrate.StateCold {
		return ErrEngineRunning
	}
	if err := removeIfExists(e.cfg.Index.Path); err != nil {
		return err
	}
	if err := e.Start(ctx); err != nil {
		return err
	}
	return e.Stop(ctx)
}

// Reembed regenerates every item embedding with the configured provider and
// invalidates the persisted index. It must run before Start.
func (e *Engine) Reembed(ctx context.Context, batchSize int) (int, error) {
	if e.hydrator.State() != hydrate.StateCold {
		return 0, ErrEngineRunning
	}
	cfg := reembed.DefaultConfig()
	if batchSize > 0 {
		cfg.BatchSize = batchSize
	}
	cfg.MaxRetries = e.cfg.Service.MaxRetries
	cfg.Dimension = e.cfg.Index.Dim
	cfg.IndexPath = e.cfg.Index.Path

	r, err := reembed.NewReembedder(e.store, e.provider.Embedder(), cfg, e.logger)
	if err != nil {
		return 0, err
	}
	return r.Run(ctx)
}

// Handler returns the HTTP API over the service.
func (e *Engine) Handler() (http.Handler, error) {
	h, err := httpapi.New(e.service,
		httpapi.WithLogger(e.logger),
		httpapi.WithMetrics(e.metrics),
		httpapi.WithState(func() string { return e.hydrator.State().String() }),
		httpapi.WithLimits(e.cfg.Ranking.DefaultK, e.cfg.Ranking.MaxK),
		httpapi.WithCORS(e.cfg.HTTP.CORSOrigins...),
	)
	if err != nil {
		return nil, err
	}
	return h.Routes(), nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Service returns the request-facing service.
func (e *Engine) Service() *service.Service {
	return e.service
}

// Ingestion returns the item and user ingestion pipeline.
func (e *Engine) Ingestion() *ingestion.Pipeline {
	return e.ingestion
}

// Store returns the metadata store.
func (e *Engine) Store() storage.MetadataStore {
	return e.store
}

// State returns the hydration lifecycle state.
func (e *Engine) State() hydrate.State {
	return e.hydrator.State()
}

// Metrics returns the engine collectors.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
