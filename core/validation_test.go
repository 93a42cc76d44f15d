package core

import (
	"errors"
	"math"
	"testing"
)

func unitVec(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestValidateItem(t *testing.T) {
	tests := []struct {
		name    string
		item    *Item
		dim     int
		wantErr error
	}{
		{
			name:    "valid item without embedding",
			item:    &Item{Id: 1, Title: "Laptop", Category: CategoryElectronics},
			dim:     4,
			wantErr: nil,
		},
		{
			name:    "valid item with embedding",
			item:    &Item{Id: 1, Title: "Laptop", Category: CategoryElectronics, Embedding: unitVec(4, 0), Popularity: 3},
			dim:     4,
			wantErr: nil,
		},
		{
			name:    "nil item",
			item:    nil,
			dim:     4,
			wantErr: ErrInvalidItem,
		},
		{
			name:    "zero id",
			item:    &Item{Title: "Laptop", Category: CategoryElectronics},
			dim:     4,
			wantErr: ErrZeroID,
		},
		{
			name:    "empty title",
			item:    &Item{Id: 1, Category: CategoryBooks},
			dim:     4,
			wantErr: ErrEmptyTitle,
		},
		{
			name:    "unknown category",
			item:    &Item{Id: 1, Title: "Mystery", Category: 42},
			dim:     4,
			wantErr: ErrInvalidCategory,
		},
		{
			name:    "negative popularity",
			item:    &Item{Id: 1, Title: "Chair", Category: CategoryHome, Popularity: -1},
			dim:     4,
			wantErr: ErrInvalidPopularity,
		},
		{
			name:    "NaN popularity",
			item:    &Item{Id: 1, Title: "Chair", Category: CategoryHome, Popularity: float32(math.NaN())},
			dim:     4,
			wantErr: ErrInvalidPopularity,
		},
		{
			name:    "wrong dimension",
			item:    &Item{Id: 1, Title: "Shirt", Category: CategoryClothing, Embedding: unitVec(3, 0)},
			dim:     4,
			wantErr: ErrDimensionMismatch,
		},
		{
			name:    "not normalized",
			item:    &Item{Id: 1, Title: "Shirt", Category: CategoryClothing, Embedding: []float32{1, 1, 0, 0}},
			dim:     4,
			wantErr: ErrNotNormalized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateItem(tt.item, tt.dim)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateItem() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateItem() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidItem) {
				t.Errorf("ValidateItem() error = %v, should wrap ErrInvalidItem", err)
			}
		})
	}
}

func TestValidateUser(t *testing.T) {
	tests := []struct {
		name    string
		user    *User
		wantErr error
	}{
		{
			name: "valid user",
			user: &User{Id: 7, Name: "ada", Embedding: unitVec(4, 2)},
		},
		{
			name:    "nil user",
			wantErr: ErrInvalidUser,
		},
		{
			name:    "zero id",
			user:    &User{Embedding: unitVec(4, 2)},
			wantErr: ErrZeroID,
		},
		{
			name:    "missing embedding",
			user:    &User{Id: 7},
			wantErr: ErrDimensionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUser(tt.user, 4)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateUser() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateUser() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmbedding_SkipsLengthWhenDimZero(t *testing.T) {
	if err := ValidateEmbedding(unitVec(9, 3), 0); err != nil {
		t.Errorf("ValidateEmbedding() unexpected error = %v", err)
	}
	if err := ValidateEmbedding(nil, 0); !errors.Is(err, ErrNotNormalized) {
		t.Errorf("ValidateEmbedding(nil) error = %v, want ErrNotNormalized", err)
	}
}
