package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/curata/ai"
	"github.com/poiesic/curata/core"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrUnexpectedResponse is returned when the server answers with the wrong
// number of embeddings.
var ErrUnexpectedResponse = errors.New("unexpected embedding response")

// ErrServiceUnavailable is returned without contacting the server while the
// circuit breaker is open.
var ErrServiceUnavailable = errors.New("embedding service unavailable")

// Circuit breaker settings for the embedding server.
const (
	breakerFailureThreshold = 5
	breakerOpenTimeout      = 30 * time.Second
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder embeddings.Embedder
	breaker  *gobreaker.CircuitBreaker[[][]float32]
	dim      int
	logger   *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token; Normalize defaults it to "none"
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.Token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	// Wrap in langchaingo embedder
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-embedder")
	return &Embedder{
		embedder: embedder,
		breaker:  newBreaker(logger),
		dim:      config.Dimensions,
		logger:   logger,
	}, nil
}

// newBreaker trips after consecutive server failures and lets a single trial
// request through once the open timeout passes.
func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker[[][]float32] {
	return gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        "openai-embedder",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about server health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	embeddings, err := e.embedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}

	if len(embeddings) == 0 {
		e.logger.Warn("embedder returned empty result")
		return nil, fmt.Errorf("%w: empty result", ErrUnexpectedResponse)
	}
	if err := e.checkDim(embeddings[0]); err != nil {
		return nil, err
	}

	return embeddings[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	embeddings, err := e.embedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", ErrUnexpectedResponse, len(embeddings), len(texts))
	}
	for _, vec := range embeddings {
		if err := e.checkDim(vec); err != nil {
			return nil, err
		}
	}

	return embeddings, nil
}

func (e *Embedder) embedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.breaker.Execute(func() ([][]float32, error) {
		return e.embedder.EmbedDocuments(ctx, texts)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	return vecs, err
}

// checkDim rejects vectors whose length differs from the configured dimension.
func (e *Embedder) checkDim(vec []float32) error {
	if e.dim > 0 && len(vec) != e.dim {
		e.logger.Error("embedding has wrong dimension", "got", len(vec), "want", e.dim)
		return fmt.Errorf("%w: got %d, want %d", core.ErrDimensionMismatch, len(vec), e.dim)
	}
	return nil
}
