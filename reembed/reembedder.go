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


package reembed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/poiesic/curata/ai"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/hydrate"
	"github.com/poiesic/curata/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of items to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of items)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Dimension is the required embedding length. Zero accepts any length.
	Dimension int

	// IndexPath is the persisted vector index. It is removed after a
	// successful run so the next startup rebuilds from the new embeddings.
	IndexPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of every item in a store.
// It must run while the engine is stopped.
type Reembedder struct {
	repo      storage.ItemRepository
	config    *Config
	logger    *slog.Logger
	processor *BatchProcessor
	iterator  *hydrate.ItemIterator
}

// NewReembedder creates a new reembedder. A nil logger uses slog.Default().
func NewReembedder(repo storage.ItemRepository, embedder ai.Embedder, config *Config, logger *slog.Logger) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidConfig, config.BatchSize)
	}
	if config.MaxRetries <= 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, hydrate.ErrInvalidMaxAttempts)
	}
	if logger == nil {
		logger = slog.Default()
	}

	processor := NewBatchProcessor(repo, embedder, config.Dimension, config.MaxRetries, config.RetryDelay)
	iterator := hydrate.NewItemIterator(repo, config.BatchSize).WithRetry(config.MaxRetries, config.RetryDelay)

	return &Reembedder{
		repo:      repo,
		config:    config,
		logger:    logger.With("component", "reembed"),
		processor: processor,
		iterator:  iterator,
	}, nil
}

// Run reembeds every stored item with the configured embedder and returns
// the number of items processed.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	// Count items up front for progress reporting
	total := 0
	err := r.repo.AllItems(ctx, func(*core.Item) error {
		total++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}

	if total == 0 {
		r.logger.Info("no items found in store")
		return 0, nil
	}

	r.logger.Info("starting reembedding", "items", total, "batch_size", r.config.BatchSize)

	tracker := hydrate.NewProgressTracker(r.logger, "reembedding", total, r.config.ReportInterval)
	tracker.Start()

	// Process all items in batches
	err = r.iterator.ForEach(ctx, func(items []*core.Item) error {
		if err := r.processor.Process(ctx, items); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		tracker.Increment(len(items))
		return nil
	})
	if err != nil {
		return tracker.Current(), err
	}

	tracker.Finish()

	if r.config.IndexPath != "" {
		if err := os.Remove(r.config.IndexPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return tracker.Current(), fmt.Errorf("failed to invalidate index %s: %w", r.config.IndexPath, err)
		}
		r.logger.Info("removed stale vector index", "path", r.config.IndexPath)
	}

	return tracker.Current(), nil
}
