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


package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when a request arrives before hydration finishes.
	ErrNotReady = errors.New("service not ready")

	// ErrShuttingDown is returned once draining has begun. It also matches ErrNotReady.
	ErrShuttingDown = fmt.Errorf("%w: shutting down", ErrNotReady)

	// ErrDrainTimeout is returned when in-flight requests outlive the drain deadline.
	ErrDrainTimeout = errors.New("drain timed out with requests in flight")

	// ErrUserNotFound is returned when a recommendation names an unknown user.
	ErrUserNotFound = errors.New("user not found")

	// ErrItemNotFound is returned when an item write names an unknown item.
	ErrItemNotFound = errors.New("item not found")

	// ErrEmbeddingFailed is returned when query text cannot be embedded.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrPipelineRequired is returned when a scoring pipeline is not provided.
	ErrPipelineRequired = errors.New("scoring pipeline required")

	// ErrStoreRequired is returned when a metadata store is not provided.
	ErrStoreRequired = errors.New("metadata store required")

	// ErrGateRequired is returned when a readiness gate is not provided.
	ErrGateRequired = errors.New("readiness gate required")
)
