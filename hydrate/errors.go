package hydrate

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidState is returned when Start or Stop is called out of order.
	ErrInvalidState = errors.New("invalid hydrator state")

	// ErrStoreUnavailable is returned when the metadata store cannot be read
	// during startup. Startup cannot continue without it.
	ErrStoreUnavailable = errors.New("metadata store unavailable")

	// ErrRebuildMismatch is returned when a rebuilt index still disagrees
	// with the metadata store.
	ErrRebuildMismatch = errors.New("rebuilt index does not match metadata store")

	// ErrPersistenceFailure is returned when the index or store cannot be
	// made durable at shutdown.
	ErrPersistenceFailure = errors.New("persistence failure")
)
