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


package core

import (
	"fmt"
	"math"
)

// NormTolerance is the maximum allowed deviation of a vector's squared norm from 1.
const NormTolerance = 1e-3

// ValidateItem validates an Item according to domain rules.
//
// Validation rules:
//   - Id must not be zero
//   - Title must not be empty
//   - Category must be valid
//   - Popularity must be finite and non-negative
//   - Embedding, when present, must have dim entries and unit length
//
// An empty Embedding is accepted; items are embedded during ingestion.
func ValidateItem(item *Item, dim int) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidItem)
	}

	if item.Id == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrZeroID)
	}

	if item.Title == "" {
		return fmt.Errorf("%w: %w", ErrInvalidItem, ErrEmptyTitle)
	}

	if err := ValidateCategory(item.Category); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	if err := ValidatePopularity(item.Popularity); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	if item.HasEmbedding() {
		if err := ValidateEmbedding(item.Embedding, dim); err != nil {
			return fmt.Errorf("%w: item %d: %w", ErrInvalidItem, item.Id, err)
		}
	}

	return nil
}

// ValidateUser validates a User. Users must always carry an embedding.
func ValidateUser(user *User, dim int) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", ErrInvalidUser)
	}

	if user.Id == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidUser, ErrZeroID)
	}

	if err := ValidateEmbedding(user.Embedding, dim); err != nil {
		return fmt.Errorf("%w: user %d: %w", ErrInvalidUser, user.Id, err)
	}

	return nil
}

// ValidateCategory validates that a Category has a known value.
func ValidateCategory(c Category) error {
	if _, ok := categoryNames[c]; !ok {
		return fmt.Errorf("%w: value %d", ErrInvalidCategory, c)
	}
	return nil
}

// ValidatePopularity rejects negative, NaN and infinite popularity values.
func ValidatePopularity(p float32) error {
	f := float64(p)
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPopularity, p)
	}
	return nil
}

// ValidateEmbedding checks length and unit norm. A dim of zero skips the length check.
func ValidateEmbedding(vec []float32, dim int) error {
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	if !IsNormalized(vec, NormTolerance) {
		return ErrNotNormalized
	}
	return nil
}
