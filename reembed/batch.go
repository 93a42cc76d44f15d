package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/curata/ai"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/hydrate"
	"github.com/poiesic/curata/storage"
)

// BatchProcessor handles embedding generation for batches of items.
type BatchProcessor struct {
	repo           storage.ItemRepository
	embedder       ai.Embedder
	dim            int
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// dim: required embedding length, or 0 to accept any length
// maxRetries: maximum number of retry attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.ItemRepository, embedder ai.Embedder, dim, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		dim:            dim,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process generates embeddings for a batch of items and writes them back to the store.
// Vectors are normalized after embedding so inner product equals cosine similarity.
func (bp *BatchProcessor) Process(ctx context.Context, items []*core.Item) error {
	if len(items) == 0 {
		return nil
	}

	// Extract text content
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text()
	}

	// Generate embeddings with retry
	var embeddings [][]float32
	err := hydrate.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)

	if err != nil {
		return fmt.Errorf("%w: after %d attempts: %w", ErrEmbeddingFailed, bp.maxRetries, err)
	}

	if len(embeddings) != len(items) {
		return fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingFailed, len(items), len(embeddings))
	}

	// Normalize vectors and assign to items
	for i, item := range items {
		vec := core.Normalize(embeddings[i])
		if err := core.ValidateEmbedding(vec, bp.dim); err != nil {
			return fmt.Errorf("%w: item %d: %w", ErrEmbeddingFailed, item.Id, err)
		}
		item.Embedding = vec
	}

	// Update items in database
	if _, err := bp.repo.PutItems(ctx, items...); err != nil {
		return fmt.Errorf("failed to update items: %w", err)
	}

	return nil
}
