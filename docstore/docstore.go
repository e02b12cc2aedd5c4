// Package docstore binds vector labels to JSON documents on disk.
//
// Each document body lives in its own file under
// <base>/documents/<index>/doc_<id>.json, and its embedding lives in the
// registry index of the same name under label id. The store keeps the two
// consistent: the vector is written first and compensated away if the body
// write fails, and deletes remove the vector before touching the file.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/memvec/memvec"
	"github.com/memvec/memvec/codec"
	"github.com/memvec/memvec/embeddings"
	"github.com/memvec/memvec/index"
)

// fallbackDimension is the embedding width used when no provider is
// configured, matching the default width of the small OpenAI models so a
// later switch to a real provider does not invalidate existing indices.
const fallbackDimension = 1536

// EnsureIndex defaults.
const (
	defaultMaxElements = 10000
	ensureSeed         = 42
)

// Document is a stored document body plus its embedding.
//
// Embedding and EmbeddingDim are attached from the vector index at read
// time and never persisted in the body file.
type Document struct {
	ID        uint64          `json:"id"`
	Content   string          `json:"content"`
	Type      string          `json:"type,omitempty"`
	Source    string          `json:"source,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`

	Embedding    []float32 `json:"-"`
	EmbeddingDim int       `json:"-"`
}

// Result is a document together with its query distance.
type Result struct {
	Document *Document
	Distance float32
}

// Store is a file-per-document store bound to a vector registry.
type Store struct {
	basePath string
	db       *memvec.VectorDB
	provider embeddings.Provider
	logger   *memvec.Logger
	codec    codec.Codec
}

// Option configures a Store.
type Option func(*Store)

// WithProvider sets the embeddings provider used by AddText and
// SearchText. Without one, text operations fall back to zero vectors.
func WithProvider(p embeddings.Provider) Option {
	return func(s *Store) { s.provider = p }
}

// WithLogger configures structured logging. If nil is passed, logging is
// disabled.
func WithLogger(logger *memvec.Logger) Option {
	return func(s *Store) {
		if logger == nil {
			logger = memvec.NoopLogger()
		}
		s.logger = logger
	}
}

// WithCodec sets the codec used for document bodies. If nil is passed,
// codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(s *Store) {
		if c == nil {
			c = codec.Default
		}
		s.codec = c
	}
}

// New creates a document store rooted at basePath, bound to db.
func New(basePath string, db *memvec.VectorDB, optFns ...Option) *Store {
	s := &Store{
		basePath: basePath,
		db:       db,
		logger:   memvec.NoopLogger(),
		codec:    codec.Default,
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

func (s *Store) indexDir(indexName string) string {
	return filepath.Join(s.basePath, "documents", indexName)
}

func (s *Store) docPath(indexName string, id uint64) string {
	return filepath.Join(s.indexDir(indexName), fmt.Sprintf("doc_%d.json", id))
}

// EnsureIndex creates the named index if it does not exist yet. Dimension
// is required; maxElements <= 0 falls back to the default capacity. The
// index uses cosine distance, the natural metric for text embeddings.
func (s *Store) EnsureIndex(indexName string, dimension, maxElements int) error {
	if s.db.HasIndex(indexName) {
		return nil
	}
	if maxElements <= 0 {
		maxElements = defaultMaxElements
	}

	err := s.db.CreateIndex(indexName, index.Config{
		Dimension:   dimension,
		MaxElements: maxElements,
		RandomSeed:  ensureSeed,
		Metric:      index.MetricCosine,
	})
	if err != nil {
		// Lost a race with a concurrent EnsureIndex.
		if s.db.HasIndex(indexName) {
			return nil
		}
		return err
	}
	return nil
}

// ListIndices returns the names of all registered indices.
func (s *Store) ListIndices() []string {
	return s.db.ListIndices()
}

// Add stores a document with an externally computed embedding. The
// assigned id is the index size at insert time, so ids stay dense and
// monotonic. The vector is added first; if persisting the body fails, the
// vector is deleted again so the index never points at a missing document.
func (s *Store) Add(ctx context.Context, indexName, content string, embedding []float32, dim int, typ, source string, metadata json.RawMessage) (uint64, error) {
	if len(embedding) != dim {
		return 0, &memvec.DimensionMismatchError{Expected: dim, Actual: len(embedding)}
	}
	if err := s.EnsureIndex(indexName, dim, 0); err != nil {
		return 0, err
	}

	size, err := s.db.IndexSize(indexName)
	if err != nil {
		return 0, err
	}
	id := uint64(size)

	if err := s.db.AddVector(indexName, embedding, id); err != nil {
		return 0, err
	}

	committed := false
	defer func() {
		if !committed {
			if derr := s.db.DeleteVector(indexName, id); derr != nil {
				s.logger.ErrorContext(ctx, "compensating vector delete failed",
					"index", indexName,
					"id", id,
					"error", derr,
				)
			}
		}
	}()

	doc := &Document{
		ID:        id,
		Content:   content,
		Type:      typ,
		Source:    source,
		Timestamp: time.Now().Unix(),
		Metadata:  metadata,
	}
	if err := s.writeBody(indexName, doc); err != nil {
		return 0, err
	}
	committed = true

	s.logger.DebugContext(ctx, "document added",
		"index", indexName,
		"id", id,
	)

	return id, nil
}

// AddText embeds the text through the configured provider and stores it.
// Without a configured provider the document is stored with a zero vector
// of the fallback width, so the body is kept even before embeddings are
// set up.
func (s *Store) AddText(ctx context.Context, indexName, text, typ, source string, metadata json.RawMessage) (uint64, error) {
	embedding, err := s.embed(ctx, text)
	if err != nil {
		return 0, err
	}
	return s.Add(ctx, indexName, text, embedding, len(embedding), typ, source, metadata)
}

// Get returns the document stored under id. The body file is required;
// the embedding is attached when the vector is still readable.
func (s *Store) Get(ctx context.Context, indexName string, id uint64) (*Document, error) {
	doc, err := s.readBody(indexName, id)
	if err != nil {
		return nil, err
	}
	s.attachEmbedding(indexName, doc)
	return doc, nil
}

// Search runs a k-NN query and resolves each hit to its document.
// Labels whose body cannot be loaded are skipped rather than failing the
// whole query; the index may briefly reference documents removed by a
// concurrent delete.
func (s *Store) Search(ctx context.Context, indexName string, query []float32, dim, k int) ([]Result, error) {
	if len(query) != dim {
		return nil, &memvec.DimensionMismatchError{Expected: dim, Actual: len(query)}
	}

	hits, err := s.db.Search(indexName, query, k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		doc, err := s.readBody(indexName, hit.Label)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unloadable document",
				"index", indexName,
				"id", hit.Label,
				"error", err,
			)
			continue
		}
		s.attachEmbedding(indexName, doc)
		results = append(results, Result{Document: doc, Distance: hit.Distance})
	}

	return results, nil
}

// SearchText embeds the query text and runs Search.
func (s *Store) SearchText(ctx context.Context, indexName, text string, k int) ([]Result, error) {
	query, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.Search(ctx, indexName, query, len(query), k)
}

// Update modifies an existing document. content and metadata are merged
// when non-nil; a non-nil embedding replaces the stored vector after the
// registry's dimension check. The timestamp is refreshed.
func (s *Store) Update(ctx context.Context, indexName string, id uint64, content *string, embedding []float32, dim int, metadata json.RawMessage) error {
	doc, err := s.readBody(indexName, id)
	if err != nil {
		return err
	}

	if embedding != nil {
		if len(embedding) != dim {
			return &memvec.DimensionMismatchError{Expected: dim, Actual: len(embedding)}
		}
		if err := s.db.UpdateVector(indexName, embedding, id); err != nil {
			return err
		}
	}

	if content != nil {
		doc.Content = *content
	}
	if metadata != nil {
		doc.Metadata = metadata
	}
	doc.Timestamp = time.Now().Unix()

	return s.writeBody(indexName, doc)
}

// Delete removes the document's vector, then its body file. When the
// vector delete fails the file is left untouched, so a bad id never
// destroys data.
func (s *Store) Delete(ctx context.Context, indexName string, id uint64) error {
	if err := s.db.DeleteVector(indexName, id); err != nil {
		return err
	}

	if err := os.Remove(s.docPath(indexName, id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove document body: %w", err)
	}

	s.logger.DebugContext(ctx, "document deleted",
		"index", indexName,
		"id", id,
	)

	return nil
}

// SearchByTime returns documents whose timestamp falls in [start, end],
// newest first is not guaranteed; this is a linear scan over the body
// files, intended for small indices. limit > 0 caps the result count.
func (s *Store) SearchByTime(ctx context.Context, indexName string, start, end int64, limit int) ([]Result, error) {
	dirEntries, err := os.ReadDir(s.indexDir(indexName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan document dir: %w", err)
	}

	var results []Result
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}

		var id uint64
		if _, err := fmt.Sscanf(de.Name(), "doc_%d.json", &id); err != nil {
			continue
		}

		doc, err := s.readBody(indexName, id)
		if err != nil {
			continue
		}
		if doc.Timestamp < start || doc.Timestamp > end {
			continue
		}

		s.attachEmbedding(indexName, doc)
		results = append(results, Result{Document: doc})

		if limit > 0 && len(results) >= limit {
			break
		}
	}

	return results, nil
}

// embed produces a vector for text, falling back to a zero vector when no
// provider can serve the request.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	if s.provider == nil || !s.provider.Configured() {
		return make([]float32, fallbackDimension), nil
	}
	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	return vec, nil
}

func (s *Store) writeBody(indexName string, doc *Document) error {
	if err := os.MkdirAll(s.indexDir(indexName), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}

	data, err := s.codec.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %d: %w", doc.ID, err)
	}
	if err := os.WriteFile(s.docPath(indexName, doc.ID), data, 0o644); err != nil {
		return fmt.Errorf("write document %d: %w", doc.ID, err)
	}

	return nil
}

func (s *Store) readBody(indexName string, id uint64) (*Document, error) {
	data, err := os.ReadFile(s.docPath(indexName, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: document %d", memvec.ErrNotFound, id)
		}
		return nil, fmt.Errorf("read document %d: %w", id, err)
	}

	var doc Document
	if err := s.codec.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %d: %w", id, err)
	}

	return &doc, nil
}

// attachEmbedding fills in the document's vector from the index. A
// missing vector is not an error; the body is the source of truth.
func (s *Store) attachEmbedding(indexName string, doc *Document) {
	vec, err := s.db.GetVector(indexName, doc.ID)
	if err != nil {
		return
	}
	doc.Embedding = vec
	doc.EmbeddingDim = len(vec)
}
