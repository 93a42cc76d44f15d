package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a metadata store is not provided.
	ErrStoreRequired = errors.New("metadata store required")

	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrKeywordIndexRequired is returned when a keyword index is not provided.
	ErrKeywordIndexRequired = errors.New("keyword index required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmbeddingFailed is returned when item text cannot be embedded.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrIndexUpdateFailed is returned when records were stored but could not
	// be added to an index. The store stays authoritative and the next
	// startup reconciles the index.
	ErrIndexUpdateFailed = errors.New("index update failed after store commit")
)
