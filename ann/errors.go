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


package ann

import (
	"errors"
	"fmt"

	"github.com/poiesic/curata/core"
)

var (
	// ErrInvalidConfig indicates bad dimension, capacity or graph parameters.
	ErrInvalidConfig = errors.New("invalid index configuration")

	// ErrNotInitialized indicates an operation on an index that was never
	// initialized or loaded, or was destroyed.
	ErrNotInitialized = errors.New("index not initialized")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// index dimension. It also matches core.ErrDimensionMismatch.
	ErrDimensionMismatch = fmt.Errorf("index: %w", core.ErrDimensionMismatch)

	// ErrCorruptIndex indicates a persisted index that cannot be used:
	// wrong magic, version, checksum, dimension or truncated contents.
	ErrCorruptIndex = errors.New("corrupt index file")

	// ErrCapacityExceeded indicates the index already holds capacity entries.
	ErrCapacityExceeded = errors.New("index capacity exceeded")

	// ErrDuplicateLabel indicates an id that is already present in the graph.
	ErrDuplicateLabel = errors.New("label already indexed")
)
