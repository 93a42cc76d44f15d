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
	"errors"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// ErrCodecLength indicates a decoded length prefix is negative or exceeds the input.
var ErrCodecLength = errors.New("invalid encoded length")

// MUS serializers for the stored record types. Timestamps are encoded as
// Unix microseconds, embeddings as a varint length followed by raw float32s.
var (
	IDMUS       mus.Serializer[ID]        = idMUS{}
	CategoryMUS mus.Serializer[Category]  = categoryMUS{}
	ItemMUS     mus.Serializer[Item]      = itemMUS{}
	UserMUS     mus.Serializer[User]      = userMUS{}
	VectorMUS   mus.Serializer[[]float32] = vectorMUS{}
)

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) int { return varint.Uint64.Marshal(uint64(v), bs) }

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(v ID) int { return varint.Uint64.Size(uint64(v)) }

func (idMUS) Skip(bs []byte) (int, error) { return varint.Uint64.Skip(bs) }

type categoryMUS struct{}

func (categoryMUS) Marshal(v Category, bs []byte) int { return varint.Int64.Marshal(int64(v), bs) }

func (categoryMUS) Unmarshal(bs []byte) (Category, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	return Category(v), n, err
}

func (categoryMUS) Size(v Category) int { return varint.Int64.Size(int64(v)) }

func (categoryMUS) Skip(bs []byte) (int, error) { return varint.Int64.Skip(bs) }

type vectorMUS struct{}

func (vectorMUS) Marshal(v []float32, bs []byte) int {
	n := varint.Uint64.Marshal(uint64(len(v)), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (vectorMUS) Unmarshal(bs []byte) ([]float32, int, error) {
	l, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	// Each raw float32 needs at least one byte.
	if l > uint64(len(bs)-n) {
		return nil, n, ErrCodecLength
	}
	if l == 0 {
		return nil, n, nil
	}
	v := make([]float32, l)
	for i := range v {
		f, m, err := raw.Float32.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
		v[i] = f
	}
	return v, n, nil
}

func (vectorMUS) Size(v []float32) int {
	size := varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		size += raw.Float32.Size(f)
	}
	return size
}

func (s vectorMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(timeMicros(t), bs)
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	if v == 0 {
		return time.Time{}, n, nil
	}
	return time.UnixMicro(v).UTC(), n, nil
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(timeMicros(t))
}

func timeMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

type itemMUS struct{}

func (itemMUS) Marshal(v Item, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Title, bs[n:])
	n += CategoryMUS.Marshal(v.Category, bs[n:])
	n += ord.String.Marshal(v.ImageURL, bs[n:])
	n += raw.Float32.Marshal(v.Price, bs[n:])
	n += VectorMUS.Marshal(v.Embedding, bs[n:])
	n += raw.Float32.Marshal(v.Popularity, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (itemMUS) Unmarshal(bs []byte) (v Item, n int, err error) {
	var m int
	if v.Id, m, err = IDMUS.Unmarshal(bs); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Title, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Category, m, err = CategoryMUS.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.ImageURL, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Price, m, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Embedding, m, err = VectorMUS.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Popularity, m, err = raw.Float32.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.InsertedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	v.UpdatedAt, m, err = unmarshalTime(bs[n:])
	return v, n + m, err
}

func (itemMUS) Size(v Item) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Title)
	size += CategoryMUS.Size(v.Category)
	size += ord.String.Size(v.ImageURL)
	size += raw.Float32.Size(v.Price)
	size += VectorMUS.Size(v.Embedding)
	size += raw.Float32.Size(v.Popularity)
	size += sizeTime(v.InsertedAt)
	size += sizeTime(v.UpdatedAt)
	return size
}

func (s itemMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type userMUS struct{}

func (userMUS) Marshal(v User, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	n += VectorMUS.Marshal(v.Embedding, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (userMUS) Unmarshal(bs []byte) (v User, n int, err error) {
	var m int
	if v.Id, m, err = IDMUS.Unmarshal(bs); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Name, m, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.Embedding, m, err = VectorMUS.Unmarshal(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	if v.InsertedAt, m, err = unmarshalTime(bs[n:]); err != nil {
		return v, n + m, err
	}
	n += m
	v.UpdatedAt, m, err = unmarshalTime(bs[n:])
	return v, n + m, err
}

func (userMUS) Size(v User) (size int) {
	size = IDMUS.Size(v.Id)
	size += ord.String.Size(v.Name)
	size += VectorMUS.Size(v.Embedding)
	size += sizeTime(v.InsertedAt)
	size += sizeTime(v.UpdatedAt)
	return size
}

func (s userMUS) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}
