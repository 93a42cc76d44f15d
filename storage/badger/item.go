package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/storage"
)

// PutItems inserts or replaces items and keeps the embedded-item counter in
// step. Replacing an existing embedding with a different one advances the
// embedding generation.
func (s *Store) PutItems(ctx context.Context, items ...*core.Item) ([]*core.Item, error) {
	for _, item := range items {
		if item == nil || item.Id == 0 {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidItem, core.ErrZeroID)
		}
	}

	err := s.backend.WithWriteTx(func(tx *badger.Txn) error {
		delta := 0
		replaced := uint64(0)
		now := time.Now().UTC()
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := makeItemKey(item.Id)

			old, err := readItem(tx, key)
			if err != nil {
				return err
			}
			if old != nil {
				item.InsertedAt = old.InsertedAt
				if old.HasEmbedding() {
					delta--
					if item.HasEmbedding() && !slices.Equal(old.Embedding, item.Embedding) {
						replaced++
					}
				}
			} else {
				item.InsertedAt = now
			}
			item.UpdatedAt = now
			if item.HasEmbedding() {
				delta++
			}

			if err := tx.Set(key, storage.MarshalItem(item)); err != nil {
				return err
			}
		}
		if replaced > 0 {
			gen, err := readUint64(tx, embeddingGenKey)
			if err != nil {
				return err
			}
			if err := writeUint64(tx, embeddingGenKey, gen+replaced); err != nil {
				return err
			}
		}
		if delta == 0 {
			return nil
		}
		count, err := readCounter(tx)
		if err != nil {
			return err
		}
		return writeCounter(tx, count+delta)
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// GetItem retrieves a single item by ID.
func (s *Store) GetItem(ctx context.Context, id core.ID) (*core.Item, error) {
	var item *core.Item
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		item, err = readItem(tx, makeItemKey(id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %d", storage.ErrNotFound, id)
	}
	return item, nil
}

// GetItems retrieves the items that exist among ids, in the order requested.
func (s *Store) GetItems(ctx context.Context, ids ...core.ID) ([]*core.Item, error) {
	items := make([]*core.Item, 0, len(ids))
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := readItem(tx, makeItemKey(id))
			if err != nil {
				return err
			}
			if item != nil {
				items = append(items, item)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// AllItems streams every item in ascending ID order.
func (s *Store) AllItems(ctx context.Context, fn func(*core.Item) error) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := decodeItem(iter.Item())
			if err != nil {
				return err
			}
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// ItemsAfter returns up to limit items whose ID is greater than after.
func (s *Store) ItemsAfter(ctx context.Context, after core.ID, limit int) ([]*core.Item, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	if after == ^core.ID(0) {
		return nil, nil
	}

	var items []*core.Item
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeItemKey(after + 1)); iter.Valid() && len(items) < limit; iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := decodeItem(iter.Item())
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CountItems returns the number of stored items that carry an embedding.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	var count int
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		count, err = readCounter(tx)
		return err
	}, false)
	return count, err
}

// RecountItems rebuilds the embedded-item counter from a full scan and
// returns the corrected value.
func (s *Store) RecountItems(ctx context.Context) (int, error) {
	var count int
	err := s.backend.WithWriteTx(func(tx *badger.Txn) error {
		count = 0
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemPrefix)
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item, err := decodeItem(iter.Item())
			if err != nil {
				iter.Close()
				return err
			}
			if item.HasEmbedding() {
				count++
			}
		}
		iter.Close()
		return writeCounter(tx, count)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("recounted items", "embedded", count)
	return count, nil
}

// GetPopularity returns the raw popularity of an item.
func (s *Store) GetPopularity(ctx context.Context, id core.ID) (float32, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return 0, err
	}
	return item.Popularity, nil
}

// SetPopularity overwrites the popularity of an existing item.
func (s *Store) SetPopularity(ctx context.Context, id core.ID, value float32) error {
	if err := core.ValidatePopularity(value); err != nil {
		return err
	}
	return s.backend.WithWriteTx(func(tx *badger.Txn) error {
		key := makeItemKey(id)
		item, err := readItem(tx, key)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("%w: item %d", storage.ErrNotFound, id)
		}
		item.Popularity = value
		item.UpdatedAt = time.Now().UTC()
		return tx.Set(key, storage.MarshalItem(item))
	})
}

// readItem returns nil, nil when the key does not exist.
func readItem(tx *badger.Txn, key []byte) (*core.Item, error) {
	entry, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeItem(entry)
}

func decodeItem(entry *badger.Item) (*core.Item, error) {
	var item *core.Item
	err := entry.Value(func(val []byte) error {
		var err error
		item, err = storage.UnmarshalItem(val)
		return err
	})
	return item, err
}

// EmbeddingGeneration returns how many writes replaced an existing embedding.
func (s *Store) EmbeddingGeneration(ctx context.Context) (uint64, error) {
	return s.readMeta(embeddingGenKey)
}

// IndexGeneration returns the embedding generation recorded for the persisted index.
func (s *Store) IndexGeneration(ctx context.Context) (uint64, error) {
	return s.readMeta(indexGenKey)
}

// SetIndexGeneration records the embedding generation of the persisted index.
func (s *Store) SetIndexGeneration(ctx context.Context, generation uint64) error {
	return s.backend.WithWriteTx(func(tx *badger.Txn) error {
		return writeUint64(tx, indexGenKey, generation)
	})
}

func (s *Store) readMeta(key string) (uint64, error) {
	var v uint64
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		v, err = readUint64(tx, key)
		return err
	}, false)
	return v, err
}

func readCounter(tx *badger.Txn) (int, error) {
	count, err := readUint64(tx, itemCounterKey)
	return int(count), err
}

func writeCounter(tx *badger.Txn, count int) error {
	return writeUint64(tx, itemCounterKey, uint64(max(count, 0)))
}

// readUint64 returns zero for a missing key.
func readUint64(tx *badger.Txn, key string) (uint64, error) {
	entry, err := tx.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = entry.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("%w: %s has %d bytes", storage.ErrSerializationFailed, key, len(val))
		}
		v = binary.BigEndian.Uint64(val)
		return nil
	})
	return v, err
}

func writeUint64(tx *badger.Txn, key string, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return tx.Set([]byte(key), buf)
}
