// Package anchor provides an offline ai.Embedder for category-structured
// catalogs.
//
// Text that names one or more item categories embeds to the normalized sum of
// those categories' anchor vectors, the same anchors used when seeding demo
// data, so a query like "books" lands next to every book. Text naming no
// category embeds to a deterministic pseudo-random unit vector derived from
// its hash.
package anchor

import (
	"context"
	"hash/fnv"
	"math/rand/v2"

	"github.com/poiesic/curata/ai"
	"github.com/poiesic/curata/core"
	"github.com/poiesic/curata/keyword"
)

// Embedder maps text to category anchor vectors.
type Embedder struct {
	dim int
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder returns an embedder producing vectors of length dim.
func NewEmbedder(dim int) *Embedder {
	return &Embedder{dim: dim}
}

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// EmbedTexts embeds texts in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *Embedder) embed(text string) []float32 {
	var cats []core.Category
	seen := make(map[core.Category]bool)
	for _, tok := range keyword.Tokenize(text) {
		c, err := core.ParseCategory(tok)
		if err != nil || seen[c] {
			continue
		}
		seen[c] = true
		cats = append(cats, c)
	}

	vec := make([]float32, e.dim)
	if len(cats) > 0 {
		for _, c := range cats {
			for i, v := range core.CategoryAnchor(c, e.dim) {
				vec[i] += v
			}
		}
		return core.Normalize(vec)
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed>>1))
	for i := range vec {
		vec[i] = rng.Float32()*2 - 1
	}
	return core.Normalize(vec)
}

// Provider implements ai.AIProvider with an anchor Embedder.
type Provider struct {
	embedder *Embedder
}

// NewProvider returns a provider for cfg.Dimensions.
func NewProvider(cfg *ai.Config) (ai.AIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Provider{embedder: NewEmbedder(cfg.Dimensions)}, nil
}

// Embedder returns the anchor embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
