package embedding

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two vectors have different lengths.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// NormalizeVector scales a vector to unit length.
// Returns a new vector. A zero vector stays zero.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}

// Dot returns the dot product of a and b. For unit vectors this is the
// cosine similarity.
func Dot(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// Mean returns the normalized centroid of vectors, or nil when there are none
// or their dimensions differ.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dims := len(vectors[0])
	sum := make([]float32, dims)
	for _, v := range vectors {
		if len(v) != dims {
			return nil
		}
		for i, val := range v {
			sum[i] += val
		}
	}
	return NormalizeVector(sum)
}
