package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/storage"
)

// PutUsers inserts or replaces users.
func (s *Store) PutUsers(ctx context.Context, users ...*core.User) ([]*core.User, error) {
	for _, user := range users {
		if user == nil || user.Id == 0 {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidUser, core.ErrZeroID)
		}
	}

	err := s.backend.WithWriteTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, user := range users {
			key := makeUserKey(user.Id)
			old, err := readUser(tx, key)
			if err != nil {
				return err
			}
			if old != nil {
				user.InsertedAt = old.InsertedAt
			} else {
				user.InsertedAt = now
			}
			user.UpdatedAt = now
			if err := tx.Set(key, storage.MarshalUser(user)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser retrieves a single user by ID.
func (s *Store) GetUser(ctx context.Context, id core.ID) (*core.User, error) {
	var user *core.User
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		user, err = readUser(tx, makeUserKey(id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", storage.ErrNotFound, id)
	}
	return user, nil
}

// GetSeen returns the user's seen-item set. Missing history is an empty set.
func (s *Store) GetSeen(ctx context.Context, userID core.ID) (*roaring64.Bitmap, error) {
	var seen *roaring64.Bitmap
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		seen, err = readSeen(tx, makeSeenKey(userID))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return seen, nil
}

// MarkSeen adds item IDs to the user's seen set.
func (s *Store) MarkSeen(ctx context.Context, userID core.ID, itemIDs ...core.ID) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return s.backend.WithWriteTx(func(tx *badger.Txn) error {
		user, err := readUser(tx, makeUserKey(userID))
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("%w: user %d", storage.ErrNotFound, userID)
		}

		key := makeSeenKey(userID)
		seen, err := readSeen(tx, key)
		if err != nil {
			return err
		}
		for _, id := range itemIDs {
			seen.Add(uint64(id))
		}
		data, err := storage.MarshalSeen(seen)
		if err != nil {
			return err
		}
		return tx.Set(key, data)
	})
}

// readUser returns nil, nil when the key does not exist.
func readUser(tx *badger.Txn, key []byte) (*core.User, error) {
	entry, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var user *core.User
	err = entry.Value(func(val []byte) error {
		var err error
		user, err = storage.UnmarshalUser(val)
		return err
	})
	return user, err
}

func readSeen(tx *badger.Txn, key []byte) (*roaring64.Bitmap, error) {
	entry, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return roaring64.New(), nil
	}
	if err != nil {
		return nil, err
	}
	var seen *roaring64.Bitmap
	err = entry.Value(func(val []byte) error {
		var err error
		seen, err = storage.UnmarshalSeen(val)
		return err
	})
	return seen, err
}
