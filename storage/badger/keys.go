package badger

import (
	"encoding/binary"

	"github.com/poiesic/curata/core"
)

// Key prefixes for different data types
const (
	itemPrefix      = "itm:"
	userPrefix      = "usr:"
	seenPrefix      = "seen:"
	itemCounterKey  = "meta:items:embedded"
	embeddingGenKey = "meta:items:generation"
	indexGenKey     = "meta:index:generation"
	idKeySize       = 8
)

// makeIDKey appends the big-endian ID to prefix so that lexicographic key
// order matches numeric ID order.
func makeIDKey(prefix string, id core.ID) []byte {
	buf := make([]byte, len(prefix)+idKeySize)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeItemKey generates a key for an item by ID.
func makeItemKey(id core.ID) []byte {
	return makeIDKey(itemPrefix, id)
}

// makeUserKey generates a key for a user by ID.
func makeUserKey(id core.ID) []byte {
	return makeIDKey(userPrefix, id)
}

// makeSeenKey generates a key for a user's seen-item set.
func makeSeenKey(userID core.ID) []byte {
	return makeIDKey(seenPrefix, userID)
}
