// Package vecmath holds the float32 vector helpers used for voice embeddings:
// cosine similarity, normalisation and weighted means. Accumulation is done
// in float64.
package vecmath

import (
	"errors"
	"math"
	"slices"
)

// ErrDimensionMismatch is returned when vectors of different lengths are
// combined.
var ErrDimensionMismatch = errors.New("vecmath: dimension mismatch")

// Dot returns the dot product of a and b. Vectors of different length give 0.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Zero vectors
// and mismatched lengths give 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	c := Dot(a, b) / (na * nb)
	return math.Max(-1, math.Min(1, c))
}

// Normalize returns a unit-length copy of v. A zero vector yields nil.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	if n == 0 {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// IsUnit reports whether v has length 1 within tol.
func IsUnit(v []float32, tol float64) bool {
	return math.Abs(Norm(v)-1) <= tol
}

// WeightedMean returns sum(w_i * v_i) / sum(w_i). Non-positive weights are
// skipped. It returns nil when no vector carries weight.
func WeightedMean(vs [][]float32, ws []float64) ([]float32, error) {
	if len(vs) != len(ws) {
		return nil, errors.New("vecmath: vectors and weights differ in length")
	}
	var (
		acc   []float64
		total float64
	)
	for i, v := range vs {
		w := ws[i]
		if w <= 0 {
			continue
		}
		if acc == nil {
			acc = make([]float64, len(v))
		} else if len(v) != len(acc) {
			return nil, ErrDimensionMismatch
		}
		for j, x := range v {
			acc[j] += w * float64(x)
		}
		total += w
	}
	if total == 0 {
		return nil, nil
	}
	out := make([]float32, len(acc))
	for j := range acc {
		out[j] = float32(acc[j] / total)
	}
	return out, nil
}

// Median returns the median of xs, or 0 for an empty slice. xs is not
// modified.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// Mean returns the arithmetic mean of xs, or 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
