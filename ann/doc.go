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


// Package ann provides an approximate nearest-neighbour vector index built on
// a Hierarchical Navigable Small World (HNSW) graph.
//
// Vectors live in inner-product space: distance is 1 - dot(a, b), so the
// similarity reported by SearchKNN is the cosine similarity of unit-length
// vectors. Callers are expected to normalize vectors before adding or
// querying them.
//
// # Lifecycle
//
// An Index starts uninitialized. Init allocates an empty graph; Load reads a
// persisted graph or, when the file is missing, creates an empty one and
// reports LoadStatusCreated. Every other operation fails with
// ErrNotInitialized until one of the two has succeeded.
//
//	idx, err := ann.New(ann.WithLogger(logger))
//	status, err := idx.Load(path, 64, 10000)
//	if errors.Is(err, ann.ErrCorruptIndex) {
//	    // rebuild from the metadata store
//	}
//	results, err := idx.SearchKNN(query, 10)
//
// # Thread Safety
//
// SearchKNN, Count and Contains may run concurrently with each other.
// AddItem, SetSearchBreadth, Save, Load, Init and Destroy take an exclusive
// lock and never overlap any other call.
//
// # File Format
//
// A persisted index is a short header (magic, version, compression) followed
// by the compressed graph body and a BLAKE2b-256 checksum over everything
// before it. Files are written to a temporary path and renamed into place.
package ann
