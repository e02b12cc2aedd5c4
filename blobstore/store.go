// Package blobstore abstracts where snapshot files are mirrored: local
// directory, memory (tests), S3, or a MinIO deployment.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is a named-blob abstraction.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes the blob under name, replacing any previous content.
	Put(ctx context.Context, name string, r io.Reader) error

	// Open opens a blob for reading. The caller closes the returned
	// reader.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
