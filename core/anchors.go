package core

import "math/rand/v2"

// CategoryAnchor returns the noise-free anchor vector of a category.
// Each category owns one contiguous quarter of the dimensions, set to 1.
// Unknown categories fall back to the Electronics quarter.
func CategoryAnchor(c Category, dim int) []float32 {
	vec := make([]float32, dim)
	slot := int(c) - 1
	if slot < 0 || slot >= len(Categories) {
		slot = 0
	}
	width := dim / len(Categories)
	for i := slot * width; i < (slot+1)*width; i++ {
		vec[i] = 1
	}
	return vec
}

// CategoryEmbedding returns a unit-length item embedding near the category anchor,
// jittered by up to ±0.1 per dimension.
func CategoryEmbedding(c Category, dim int, rng *rand.Rand) []float32 {
	vec := CategoryAnchor(c, dim)
	for i := range vec {
		vec[i] += rng.Float32()*0.2 - 0.1
	}
	return Normalize(vec)
}

// MixtureEmbedding returns a unit-length preference embedding over several
// categories, jittered by up to ±0.05 per dimension.
func MixtureEmbedding(cats []Category, dim int, rng *rand.Rand) []float32 {
	vec := make([]float32, dim)
	for _, c := range cats {
		anchor := CategoryAnchor(c, dim)
		for i, v := range anchor {
			vec[i] += v
		}
	}
	for i := range vec {
		vec[i] += rng.Float32()*0.1 - 0.05
	}
	return Normalize(vec)
}
