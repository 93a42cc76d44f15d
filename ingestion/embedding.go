package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/curata/ai"
	"github.com/poiesic/curata/core"
)

// embeddingProcessor generates embeddings for items from their text.
type embeddingProcessor struct {
	embedder ai.Embedder
	logger   *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

// newEmbeddingProcessor creates a new embedding processor.
func newEmbeddingProcessor(embedder ai.Embedder, logger *slog.Logger) (processor, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		embedder: embedder,
		logger:   logger.With("processor", "embeddings"),
	}, nil
}

// process embeds the text of each item and stores the normalized vector on it.
func (ep *embeddingProcessor) process(ctx context.Context, items ...*core.Item) error {
	if len(items) == 0 {
		return nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text()
	}

	ep.logger.Debug("generating embeddings for items", "items", len(texts))
	embeddings, err := ep.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		ep.logger.Error("error generating embeddings", "err", err)
		return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}

	if len(embeddings) != len(items) {
		return fmt.Errorf("%w: expected %d embeddings, received %d", ErrEmbeddingFailed, len(items), len(embeddings))
	}

	for i := range embeddings {
		items[i].Embedding = core.Normalize(embeddings[i])
	}

	return nil
}
