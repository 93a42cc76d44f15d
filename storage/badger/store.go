// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"log/slog"

	"github.com/poiesic/curata/storage"
)

// Store implements storage.MetadataStore on top of BadgerDB.
type Store struct {
	backend     *Backend
	ownsBackend bool
	logger      *slog.Logger
}

var _ storage.MetadataStore = (*Store)(nil)

// NewStore creates a Store over an already opened backend.
// The caller remains responsible for closing the backend.
func NewStore(backend *Backend) (*Store, error) {
	return &Store{
		backend: backend,
		logger:  backend.logger,
	}, nil
}

// OpenStore opens (or creates) a database directory and returns a Store that
// owns it. Closing the Store closes the database.
func OpenStore(path string, inMemory bool, logger *slog.Logger) (*Store, error) {
	backend, err := OpenBackend(path, inMemory, logger)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	store.ownsBackend = true
	return store, nil
}

// Flush makes committed writes durable.
func (s *Store) Flush() error {
	return s.backend.Sync()
}

// Close releases the database when the Store owns it.
func (s *Store) Close() error {
	if !s.ownsBackend {
		return nil
	}
	return s.backend.Close()
}
