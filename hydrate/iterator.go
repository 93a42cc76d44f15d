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

package hydrate

import (
	"context"
	"time"

	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/storage"
)

const (
	// DefaultBatchSize is the default number of items to fetch in each batch
	DefaultBatchSize = 500
)

// ItemIterator pages through every stored item in ascending ID order.
type ItemIterator struct {
	repo       storage.ItemRepository
	batchSize  int
	maxRetries int
	retryDelay time.Duration
}

// NewItemIterator creates a new item iterator.
// batchSize: number of items to fetch in each batch; <= 0 selects DefaultBatchSize
func NewItemIterator(repo storage.ItemRepository, batchSize int) *ItemIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ItemIterator{
		repo:       repo,
		batchSize:  batchSize,
		maxRetries: 1,
	}
}

// WithRetry retries each page read up to maxAttempts times.
func (it *ItemIterator) WithRetry(maxAttempts int, baseDelay time.Duration) *ItemIterator {
	if maxAttempts > 0 {
		it.maxRetries = maxAttempts
		it.retryDelay = baseDelay
	}
	return it
}

// ForEach calls fn with consecutive batches of items.
// Iteration stops on the first error from fn or when all items are processed.
// Context cancellation is checked between batches.
func (it *ItemIterator) ForEach(ctx context.Context, fn func([]*core.Item) error) error {
	var after core.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var batch []*core.Item
		err := RetryWithBackoff(ctx, func() error {
			var err error
			batch, err = it.repo.ItemsAfter(ctx, after, it.batchSize)
			return err
		}, it.maxRetries, it.retryDelay)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}

		if len(batch) < it.batchSize {
			return nil
		}
		after = batch[len(batch)-1].Id
	}
}
