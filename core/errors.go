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

import "errors"

// Domain validation errors
var (
	// ErrInvalidItem indicates an Item failed validation.
	ErrInvalidItem = errors.New("invalid item")

	// ErrInvalidUser indicates a User failed validation.
	ErrInvalidUser = errors.New("invalid user")

	// ErrZeroID indicates a record carries the reserved zero ID.
	ErrZeroID = errors.New("id cannot be zero")

	// ErrEmptyTitle indicates the item Title field is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrInvalidCategory indicates an unknown Category value.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrInvalidPopularity indicates a negative or non-finite popularity.
	ErrInvalidPopularity = errors.New("popularity must be a finite non-negative number")

	// ErrDimensionMismatch indicates a vector has the wrong number of dimensions.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotNormalized indicates a vector is not unit length.
	ErrNotNormalized = errors.New("vector is not L2-normalized")
)
