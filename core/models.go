package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for items and users.
// Zero is reserved and never assigned to a stored record.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content produces identical IDs. The result is never zero.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	id := ID(binary.LittleEndian.Uint64(sum))
	if id == 0 {
		id = 1
	}
	return id
}

// Category is the coarse product category of an item.
type Category int

const (
	// CategoryElectronics covers devices and gadgets.
	CategoryElectronics Category = iota + 1
	// CategoryBooks covers printed and digital books.
	CategoryBooks
	// CategoryHome covers furniture and household goods.
	CategoryHome
	// CategoryClothing covers apparel.
	CategoryClothing
)

// Categories lists every valid category in declaration order.
var Categories = []Category{CategoryElectronics, CategoryBooks, CategoryHome, CategoryClothing}

var categoryNames = map[Category]string{
	CategoryElectronics: "Electronics",
	CategoryBooks:       "Books",
	CategoryHome:        "Home",
	CategoryClothing:    "Clothing",
}

// String returns the display name of the category.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "Unknown"
}

// ParseCategory resolves a category name, ignoring case.
func ParseCategory(name string) (Category, error) {
	for c, n := range categoryNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return 0, ErrInvalidCategory
}

// Item is a catalog entry that can be recommended or searched.
type Item struct {
	Id         ID
	Title      string
	Category   Category
	ImageURL   string
	Price      float32
	Embedding  []float32 // Unit-length embedding; empty until embedded
	Popularity float32   // Non-negative raw popularity signal
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// Text returns the text indexed for keyword search.
func (i *Item) Text() string {
	return i.Title + " " + i.Category.String()
}

// HasEmbedding reports whether the item carries an embedding.
func (i *Item) HasEmbedding() bool {
	return len(i.Embedding) > 0
}

// User is a person receiving recommendations.
type User struct {
	Id         ID
	Name       string
	Embedding  []float32 // Unit-length preference embedding
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// Candidate is an item id paired with a retrieval score.
// Lists of candidates are always ordered best-first.
type Candidate struct {
	ItemId ID
	Score  float32
}

// ScoredItem is a ranked recommendation or search hit.
type ScoredItem struct {
	ItemId     ID
	FinalScore float32
	Similarity float32 // Relevance component before blending
	Popularity float32 // Normalized popularity component before blending
	Item       *Item   // Display fields; may be nil when not hydrated
}

// RankedResult is the output of the scoring pipeline.
type RankedResult struct {
	Items         []ScoredItem
	FilteredCount int // Candidates removed by the exclusion set
	Candidates    int // Candidates produced by recall
}
