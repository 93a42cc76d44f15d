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


// Package storage provides the metadata storage abstraction for curata.
//
// The MetadataStore is the single source of truth for catalog items, users,
// item popularity and per-user seen history. The vector and keyword indexes
// are derived from it and can always be rebuilt from it.
//
// # Architecture
//
//   - ItemRepository: catalog items and popularity
//   - UserRepository: users and their seen-item sets
//   - MetadataStore: both repositories plus Flush and Close
//
// Every call runs in its own transaction. There are no cross-call
// transactions.
//
// # Usage
//
//	store, err := badger.NewStore("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
