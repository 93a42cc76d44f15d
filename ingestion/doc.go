// Package ingestion adds items and users to the engine.
//
// The Pipeline type manages the ingestion workflow for items:
//   - Generating embeddings for items that arrive without one, in batches on a worker pool
//   - Normalizing and validating every record
//   - Writing records to the metadata store
//   - Adding stored items to the vector and keyword indexes
//
// Indexes are only touched after the store commit succeeds, so a failure
// part way through leaves the store ahead of the indexes. Startup
// reconciliation repairs that gap.
package ingestion
