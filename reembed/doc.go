// Package reembed regenerates item embeddings with a new or updated
// embedding model.
//
// Items are read from the metadata store in ID order, embedded in batches
// with retry and exponential backoff, normalized, and written back. The
// persisted vector index is then removed because its vectors no longer match
// the store; the next startup rebuilds it.
package reembed
