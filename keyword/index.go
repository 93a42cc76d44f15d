package keyword

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/curata/core"
)

// BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

// Prefix matches apply only to query terms of at least this many runes and
// score at prefixWeight of an exact match.
const (
	minPrefixLen = 3
	prefixWeight = 0.5
)

type posting struct {
	id    core.ID
	count int
}

// Index is an in-memory BM25 inverted index over item text.
// It is safe for concurrent use: searches share a read lock, writes are exclusive.
type Index struct {
	mu          sync.RWMutex
	inverted    map[string][]posting
	docTerms    map[core.ID][]string
	docLengths  map[core.ID]int
	totalLength int64
}

// New creates an empty index.
func New() *Index {
	return &Index{
		inverted:   make(map[string][]posting),
		docTerms:   make(map[core.ID][]string),
		docLengths: make(map[core.ID]int),
	}
}

// Add indexes text under id, replacing any previous document for id.
func (idx *Index) Add(id core.ID, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.docLengths[id]; ok {
		idx.deleteLocked(id)
	}

	tokens := Tokenize(text)
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	terms := make([]string, 0, len(tf))
	for t, count := range tf {
		idx.inverted[t] = append(idx.inverted[t], posting{id: id, count: count})
		terms = append(terms, t)
	}

	idx.docTerms[id] = terms
	idx.docLengths[id] = len(tokens)
	idx.totalLength += int64(len(tokens))
}

// AddItem indexes an item's title and category.
func (idx *Index) AddItem(item *core.Item) {
	idx.Add(item.Id, item.Text())
}

// Delete removes the document for id, if present.
func (idx *Index) Delete(id core.ID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteLocked(id)
}

func (idx *Index) deleteLocked(id core.ID) {
	length, ok := idx.docLengths[id]
	if !ok {
		return
	}

	for _, t := range idx.docTerms[id] {
		postings := idx.inverted[t]
		for i, p := range postings {
			if p.id == id {
				postings = slices.Delete(postings, i, i+1)
				break
			}
		}
		if len(postings) == 0 {
			delete(idx.inverted, t)
		} else {
			idx.inverted[t] = postings
		}
	}

	delete(idx.docTerms, id)
	delete(idx.docLengths, id)
	idx.totalLength -= int64(length)
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docLengths)
}

// Reset removes every document.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.inverted = make(map[string][]posting)
	idx.docTerms = make(map[core.ID][]string)
	idx.docLengths = make(map[core.ID]int)
	idx.totalLength = 0
}

// Search returns up to k documents matching query, highest BM25 score first.
// Equal scores are ordered by ascending id.
func (idx *Index) Search(query string, k int) []core.Candidate {
	if k <= 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	docCount := len(idx.docLengths)
	if docCount == 0 {
		return nil
	}
	avgDL := float64(idx.totalLength) / float64(docCount)
	if avgDL == 0 {
		avgDL = 1
	}

	scores := make(map[core.ID]float64)
	for _, t := range Tokenize(query) {
		if postings, ok := idx.inverted[t]; ok {
			idx.accumulate(scores, postings, avgDL, 1)
			continue
		}
		if len([]rune(t)) < minPrefixLen {
			continue
		}
		for term, postings := range idx.inverted {
			if strings.HasPrefix(term, t) {
				idx.accumulate(scores, postings, avgDL, prefixWeight)
			}
		}
	}

	results := make([]core.Candidate, 0, len(scores))
	for id, s := range scores {
		results = append(results, core.Candidate{ItemId: id, Score: float32(s)})
	}
	slices.SortFunc(results, func(a, b core.Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemId, b.ItemId)
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

func (idx *Index) accumulate(scores map[core.ID]float64, postings []posting, avgDL, weight float64) {
	idf := idx.computeIDF(len(postings))
	for _, p := range postings {
		tf := float64(p.count)
		docLen := float64(idx.docLengths[p.id])

		num := tf * (k1 + 1)
		denom := tf + k1*(1-b+b*(docLen/avgDL))
		scores[p.id] += weight * idf * (num / denom)
	}
}

func (idx *Index) computeIDF(df int) float64 {
	// IDF = log(1 + (N - n + 0.5) / (n + 0.5))
	n := float64(df)
	total := float64(len(idx.docLengths))
	return math.Log(1 + (total-n+0.5)/(n+0.5))
}
