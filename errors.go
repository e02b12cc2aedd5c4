package memvec

import (
	"errors"
	"fmt"

	"github.com/memvec/memvec/index"
)

var (
	// ErrInvalidParam is returned when an operation is called with an
	// invalid argument, such as a zero dimension or a non-positive flush
	// interval.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrIndexNotFound is returned when the named index is not registered.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexExists is returned when creating or loading an index under a
	// name that is already registered. It matches ErrInvalidParam via
	// errors.Is.
	ErrIndexExists = fmt.Errorf("%w: index already exists", ErrInvalidParam)

	// ErrNotFound unifies the not-found conditions of the underlying index
	// (unknown or deleted label).
	ErrNotFound = errors.New("not found")
)

// DimensionMismatchError indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

// translateError maps index-level errors onto the registry taxonomy so
// callers only need to know the root package sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, index.ErrElementNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var dm *index.DimensionMismatchError
	if errors.As(err, &dm) {
		return &DimensionMismatchError{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	if errors.Is(err, index.ErrInvalidK) || errors.Is(err, index.ErrInvalidEF) {
		return fmt.Errorf("%w: %w", ErrInvalidParam, err)
	}

	return err
}
