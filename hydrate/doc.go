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


// Package hydrate brings the in-memory indexes to a state consistent with the
// metadata store before any request is served, and persists them at shutdown.
//
// # Lifecycle
//
//	cold -> loading -> verifying -> consistent | rebuilding -> ready
//	ready -> shutting_down -> flushed
//
// Loading reads the persisted vector index. Verifying compares its entry
// count with the number of embedded items in the store. A missing file, a
// corrupt file or a count mismatch sends the hydrator to rebuilding, which
// builds a fresh vector index from a full scan of the store. The keyword index
// is filled from the same scan on every start.
//
// Stop drains in-flight requests for a bounded time, saves the vector index
// and flushes the store. Failures there are returned as ErrPersistenceFailure.
//
// The package also carries the batch utilities used for full scans:
// ItemIterator, ProgressTracker and RetryWithBackoff.
package hydrate
