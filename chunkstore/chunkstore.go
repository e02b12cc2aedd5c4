// Package chunkstore persists per-chunk metadata records, one JSON file
// per chunk, grouped by index name. It is the sidecar of the document
// store for pipelines that split sources into chunks before embedding.
package chunkstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/memvec/memvec"
	"github.com/memvec/memvec/codec"
)

// Chunk is one stored metadata record.
type Chunk struct {
	ChunkID    uint64          `json:"chunk_id"`
	Content    string          `json:"content"`
	IndexName  string          `json:"index_name"`
	Type       string          `json:"type,omitempty"`
	Source     string          `json:"source,omitempty"`
	Importance string          `json:"importance,omitempty"`
	Timestamp  int64           `json:"timestamp"`
	Custom     json.RawMessage `json:"custom,omitempty"`
}

// Store is a file-per-chunk metadata store.
type Store struct {
	basePath string
	codec    codec.Codec
}

// Option configures a Store.
type Option func(*Store)

// WithCodec sets the codec used for chunk records. If nil is passed,
// codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) {
		if c == nil {
			c = codec.Default
		}
		s.codec = c
	}
}

// New creates a chunk store rooted at basePath.
func New(basePath string, optFns ...Option) *Store {
	s := &Store{
		basePath: basePath,
		codec:    codec.Default,
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

func (s *Store) indexDir(indexName string) string {
	return filepath.Join(s.basePath, indexName)
}

func (s *Store) chunkPath(indexName string, id uint64) string {
	return filepath.Join(s.indexDir(indexName), fmt.Sprintf("chunk_%d.json", id))
}

// Save persists the chunk, replacing any previous record with the same
// index name and id.
func (s *Store) Save(chunk *Chunk) error {
	if chunk.IndexName == "" {
		return fmt.Errorf("%w: chunk has no index name", memvec.ErrInvalidParam)
	}

	if err := os.MkdirAll(s.indexDir(chunk.IndexName), 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}

	data, err := s.codec.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("encode chunk %d: %w", chunk.ChunkID, err)
	}
	if err := os.WriteFile(s.chunkPath(chunk.IndexName, chunk.ChunkID), data, 0o644); err != nil {
		return fmt.Errorf("write chunk %d: %w", chunk.ChunkID, err)
	}

	return nil
}

// Update replaces the stored record. It is an alias for Save; records are
// whole-file replacements.
func (s *Store) Update(chunk *Chunk) error {
	return s.Save(chunk)
}

// Get returns the chunk stored under id.
func (s *Store) Get(indexName string, id uint64) (*Chunk, error) {
	data, err := os.ReadFile(s.chunkPath(indexName, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: chunk %d", memvec.ErrNotFound, id)
		}
		return nil, fmt.Errorf("read chunk %d: %w", id, err)
	}

	var chunk Chunk
	if err := s.codec.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("decode chunk %d: %w", id, err)
	}

	return &chunk, nil
}

// Delete removes the chunk record.
func (s *Store) Delete(indexName string, id uint64) error {
	err := os.Remove(s.chunkPath(indexName, id))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: chunk %d", memvec.ErrNotFound, id)
	}
	return err
}

// List returns all chunks of the index, ordered by id. A missing index
// yields an empty result.
func (s *Store) List(indexName string) ([]*Chunk, error) {
	dirEntries, err := os.ReadDir(s.indexDir(indexName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan chunk dir: %w", err)
	}

	var chunks []*Chunk
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}

		var id uint64
		if _, err := fmt.Sscanf(de.Name(), "chunk_%d.json", &id); err != nil {
			continue
		}

		chunk, err := s.Get(indexName, id)
		if err != nil {
			continue
		}
		chunks = append(chunks, chunk)
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkID < chunks[j].ChunkID })

	return chunks, nil
}

// Search returns the chunks whose content, type, source, or custom record
// contains substr. Matching is case-insensitive.
func (s *Store) Search(indexName, substr string) ([]*Chunk, error) {
	chunks, err := s.List(indexName)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(substr)

	var matches []*Chunk
	for _, chunk := range chunks {
		haystack := strings.ToLower(strings.Join([]string{
			chunk.Content,
			chunk.Type,
			chunk.Source,
			string(chunk.Custom),
		}, "\n"))
		if strings.Contains(haystack, needle) {
			matches = append(matches, chunk)
		}
	}

	return matches, nil
}
