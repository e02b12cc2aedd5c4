package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore implements Store on a local directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at the given directory,
// creating it if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

// Put writes the blob via a temp file and rename, so a reader never sees a
// partially written blob.
func (s *LocalStore) Put(_ context.Context, name string, r io.Reader) error {
	tmp, err := os.CreateTemp(s.root, ".put-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write blob %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close blob %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.root, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("commit blob %s: %w", name, err)
	}

	return nil
}

// Open opens a blob for reading.
func (s *LocalStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := os.Remove(filepath.Join(s.root, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the names of all blobs with the given prefix.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read blob root: %w", err)
	}

	var names []string
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".put-") {
			continue
		}
		if strings.HasPrefix(de.Name(), prefix) {
			names = append(names, de.Name())
		}
	}
	return names, nil
}
