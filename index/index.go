// Package index defines the ANN index capability consumed by the registry.
//
// Implementations store vectors under caller-assigned uint64 labels and
// answer k-NN queries ordered by ascending distance. The registry depends
// only on this interface; the concrete graph algorithm lives in the hnsw
// package.
package index

import (
	"errors"
	"fmt"
	"io"

	"github.com/memvec/memvec/metric"
)

// Metric identifies the distance function an index is built with.
type Metric string

// Supported metrics.
const (
	MetricL2           Metric = "l2"
	MetricInnerProduct Metric = "ip"
	MetricCosine       Metric = "cosine"
)

// DistanceFunc represents a function for calculating the distance between
// two vectors.
type DistanceFunc func(v1, v2 []float32) (float32, error)

// Func returns the distance function for the metric, defaulting to l2 for
// unknown values (mirrors the persisted-format fallback).
func (m Metric) Func() DistanceFunc {
	switch m {
	case MetricInnerProduct:
		return metric.InnerProduct
	case MetricCosine:
		return metric.Cosine
	default:
		return metric.SquaredL2
	}
}

// Valid reports whether m names a supported metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricL2, MetricInnerProduct, MetricCosine:
		return true
	}
	return false
}

// Config holds the immutable construction parameters of an index.
type Config struct {
	// Dimension is the length of every vector in the index.
	Dimension int

	// MaxElements caps the number of distinct labels the index accepts.
	MaxElements int

	// M is the number of graph connections established per element.
	M int

	// EFConstruction is the candidate-list size used while building.
	EFConstruction int

	// RandomSeed seeds level generation, making graph shape reproducible.
	RandomSeed int64

	// Metric selects the distance function.
	Metric Metric
}

// WithDefaults returns a copy of c with unset construction parameters
// replaced by their defaults. Dimension and MaxElements are never defaulted;
// validating those is the caller's responsibility.
func (c Config) WithDefaults() Config {
	if c.M == 0 {
		c.M = 16
	}
	if c.EFConstruction == 0 {
		c.EFConstruction = 200
	}
	if c.RandomSeed == 0 {
		c.RandomSeed = 100
	}
	if c.Metric == "" {
		c.Metric = MetricL2
	}
	return c
}

// SearchResult represents a single k-NN match.
type SearchResult struct {
	// Label is the identifier the vector was stored under.
	Label uint64

	// Distance is the distance between the query and the match.
	Distance float32
}

// ErrElementNotFound is returned when a label is absent or deleted.
var ErrElementNotFound = errors.New("element not found")

// ErrIndexFull is returned when inserting a new label would exceed
// MaxElements.
var ErrIndexFull = errors.New("index is full")

// ErrInvalidEF is returned for non-positive ef values.
var ErrInvalidEF = errors.New("ef must be positive")

// ErrInvalidK is returned when a search is issued with k < 1.
var ErrInvalidK = errors.New("k must be positive")

// DimensionMismatchError indicates a vector whose length differs from the
// index dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Index is the ANN capability: a mutable label→vector mapping with
// approximate nearest-neighbor search.
//
// Implementations are safe for concurrent use, but callers that need
// ordering between a search and a concurrent mutation must serialize
// externally.
type Index interface {
	// Add stores vec under label. Adding an existing label replaces its
	// vector (upsert). Returns ErrIndexFull when a new label would exceed
	// capacity and *DimensionMismatchError on a wrong-length vector.
	Add(vec []float32, label uint64) error

	// Update replaces the vector stored under label, inserting it when
	// absent.
	Update(vec []float32, label uint64) error

	// Delete logically removes label. The element count does not decrease.
	Delete(label uint64) error

	// Get returns a copy of the vector stored under label.
	Get(label uint64) ([]float32, error)

	// Search returns up to k live labels ordered by ascending distance.
	Search(query []float32, k int) ([]SearchResult, error)

	// SetEF tunes the search-time candidate list size.
	SetEF(ef int) error

	// Len reports the number of labels ever inserted. Logical deletes do
	// not decrement it, so label assignment derived from Len stays
	// monotonic.
	Len() int

	// Capacity reports the configured MaxElements.
	Capacity() int

	// Config returns the construction parameters.
	Config() Config

	// SaveTo writes a snapshot of the index to w.
	SaveTo(w io.Writer) error
}
