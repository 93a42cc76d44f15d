package core

import "math"

// Normalize scales a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func Normalize(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	magnitude := float32(math.Sqrt(float64(Dot(v, v))))

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// Dot returns the inner product of two vectors over their common length.
func Dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// IsNormalized reports whether |v|^2 is within tol of 1.
func IsNormalized(v []float32, tol float64) bool {
	if len(v) == 0 {
		return false
	}
	sq := float64(Dot(v, v))
	return math.Abs(sq-1) <= tol
}
