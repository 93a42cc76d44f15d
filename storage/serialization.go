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


package storage

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/poiesic/curata/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, err
}

// MarshalItem serializes an Item to bytes.
func MarshalItem(item *core.Item) []byte {
	buf := make([]byte, core.ItemMUS.Size(*item))
	core.ItemMUS.Marshal(*item, buf)
	return buf
}

// UnmarshalItem deserializes an Item from bytes.
func UnmarshalItem(data []byte) (*core.Item, error) {
	item, _, err := core.ItemMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: item: %w", ErrSerializationFailed, err)
	}
	return &item, nil
}

// MarshalUser serializes a User to bytes.
func MarshalUser(user *core.User) []byte {
	buf := make([]byte, core.UserMUS.Size(*user))
	core.UserMUS.Marshal(*user, buf)
	return buf
}

// UnmarshalUser deserializes a User from bytes.
func UnmarshalUser(data []byte) (*core.User, error) {
	user, _, err := core.UserMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: user: %w", ErrSerializationFailed, err)
	}
	return &user, nil
}

// MarshalSeen serializes a seen-item bitmap in the portable roaring format.
func MarshalSeen(seen *roaring64.Bitmap) ([]byte, error) {
	seen.RunOptimize()
	data, err := seen.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: seen set: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalSeen deserializes a seen-item bitmap.
func UnmarshalSeen(data []byte) (*roaring64.Bitmap, error) {
	seen := roaring64.New()
	if err := seen.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: seen set: %w", ErrSerializationFailed, err)
	}
	return seen, nil
}
