package storage

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/poiesic/curata/core"
)

// ItemRepository provides operations for catalog items.
// Implementations must be thread-safe and support concurrent access.
type ItemRepository interface {
	// PutItems inserts or replaces items keyed by Id.
	// Sets InsertedAt on first insert and UpdatedAt on every write.
	PutItems(ctx context.Context, items ...*core.Item) ([]*core.Item, error)

	// GetItem retrieves a single item by ID.
	// Returns ErrNotFound if the item doesn't exist.
	GetItem(ctx context.Context, id core.ID) (*core.Item, error)

	// GetItems retrieves multiple items by their IDs.
	// Returns only the items that exist (no error for missing items).
	GetItems(ctx context.Context, ids ...core.ID) ([]*core.Item, error)

	// AllItems streams every item in ascending ID order.
	// Iteration stops at the first error returned by fn.
	AllItems(ctx context.Context, fn func(*core.Item) error) error

	// ItemsAfter returns up to limit items with ID greater than after, in ID order.
	ItemsAfter(ctx context.Context, after core.ID, limit int) ([]*core.Item, error)

	// CountItems returns the number of stored items that carry an embedding.
	CountItems(ctx context.Context) (int, error)

	// GetPopularity returns the raw popularity of an item.
	// Returns ErrNotFound if the item doesn't exist.
	GetPopularity(ctx context.Context, id core.ID) (float32, error)

	// SetPopularity overwrites the popularity of an existing item.
	// Returns ErrNotFound if the item doesn't exist.
	SetPopularity(ctx context.Context, id core.ID, value float32) error
}

// UserRepository provides operations for users and their seen-item sets.
type UserRepository interface {
	// PutUsers inserts or replaces users keyed by Id.
	PutUsers(ctx context.Context, users ...*core.User) ([]*core.User, error)

	// GetUser retrieves a single user by ID.
	// Returns ErrNotFound if the user doesn't exist.
	GetUser(ctx context.Context, id core.ID) (*core.User, error)

	// GetSeen returns the set of item IDs the user has seen.
	// Unknown users and users with no history yield an empty set.
	GetSeen(ctx context.Context, userID core.ID) (*roaring64.Bitmap, error)

	// MarkSeen adds item IDs to the user's seen set. The set only grows.
	// Returns ErrNotFound if the user doesn't exist.
	MarkSeen(ctx context.Context, userID core.ID, itemIDs ...core.ID) error
}

// IndexGenerations tracks whether a persisted vector index predates
// embedding replacements. Vector indexes never drop entries, so an index
// built before an existing item's embedding changed still holds the old
// vector and must be rebuilt.
type IndexGenerations interface {
	// EmbeddingGeneration counts writes that changed the embedding of an
	// item already stored with one. It never decreases.
	EmbeddingGeneration(ctx context.Context) (uint64, error)

	// IndexGeneration returns the embedding generation recorded for the
	// persisted vector index. Zero when none was recorded.
	IndexGeneration(ctx context.Context) (uint64, error)

	// SetIndexGeneration records the embedding generation the persisted
	// vector index was built at.
	SetIndexGeneration(ctx context.Context, generation uint64) error
}

// MetadataStore is the authoritative record of items, users and history.
// Indexes are rebuilt from it, never the other way round.
type MetadataStore interface {
	ItemRepository
	UserRepository
	IndexGenerations

	// Flush makes all committed writes durable.
	Flush() error

	// Close closes the storage backend and releases resources.
	Close() error
}
