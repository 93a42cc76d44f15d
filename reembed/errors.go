package reembed

import "errors"

var (
	// ErrRepositoryRequired is returned when an item repository is not provided.
	ErrRepositoryRequired = errors.New("item repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidConfig is returned for non-positive batch sizes or retry counts.
	ErrInvalidConfig = errors.New("invalid reembed configuration")

	// ErrEmbeddingFailed is returned when a batch cannot be embedded.
	ErrEmbeddingFailed = errors.New("embedding failed")
)
