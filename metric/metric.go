// Package metric provides distance functions for float32 vectors.
//
// All functions return a distance, not a similarity: smaller is closer.
package metric

import (
	"errors"

	"github.com/memvec/memvec/internal/math32"
)

// ErrSizeMismatch is returned when the two vectors differ in length.
var ErrSizeMismatch = errors.New("vector sizes do not match")

// Magnitude calculates the magnitude (length) of a float32 slice.
func Magnitude(v []float32) float32 {
	return math32.Sqrt(math32.Dot(v, v))
}

// SquaredL2 calculates the squared L2 distance between two float32 slices.
func SquaredL2(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}

	return math32.SquaredL2(v1, v2), nil
}

// InnerProduct calculates the inner-product distance 1 - <v1, v2>.
//
// This matches the convention of inner-product ANN spaces: for normalized
// vectors the distance is 0 when the vectors coincide.
func InnerProduct(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}

	return 1 - math32.Dot(v1, v2), nil
}

// Cosine calculates the cosine distance 1 - cos(v1, v2).
//
// A zero-magnitude operand has no direction; the similarity term is 0 and
// the distance is 1.
func Cosine(v1, v2 []float32) (float32, error) {
	if len(v1) != len(v2) {
		return 0, ErrSizeMismatch
	}

	dot := math32.Dot(v1, v2)

	magA := Magnitude(v1)
	magB := Magnitude(v2)

	if magA == 0 || magB == 0 {
		return 1, nil
	}

	return 1 - dot/(magA*magB), nil
}
