package memvec

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/memvec/memvec/blobstore"
	"github.com/memvec/memvec/hnsw"
	"github.com/memvec/memvec/index"
)

// SearchResult is a single nearest-neighbor hit.
type SearchResult = index.SearchResult

// saveConcurrency bounds the number of parallel snapshot writes in SaveAll.
const saveConcurrency = 4

// entry is a registered index together with its operation lock.
//
// The registry mutex only guards the map; per-vector operations lock the
// entry and release the registry mutex before touching the graph, so slow
// operations on one index never block the others.
type entry struct {
	mu  sync.RWMutex
	idx index.Index
}

// VectorDB is a registry of named ANN indices with snapshot persistence and
// an optional background auto-flush.
type VectorDB struct {
	mu      sync.Mutex
	indices map[string]*entry

	flushMu       sync.Mutex
	flushDir      string
	flushInterval time.Duration
	flushCallback FlushCallback
	flushEnabled  bool
	flushStop     chan struct{}
	flushWG       sync.WaitGroup

	logger  *Logger
	metrics MetricsCollector
	mirror  blobstore.Store
}

// New creates an empty registry.
func New(optFns ...Option) *VectorDB {
	opts := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &VectorDB{
		indices: make(map[string]*entry),
		logger:  opts.logger,
		metrics: opts.metricsCollector,
		mirror:  opts.flushMirror,
	}
}

// Close stops the auto-flush goroutine, if any, and drops all indices.
// No final flush is performed.
func (db *VectorDB) Close() {
	db.DisableAutoFlush()

	db.mu.Lock()
	defer db.mu.Unlock()

	db.indices = make(map[string]*entry)
}

// CreateIndex registers a new index under name.
func (db *VectorDB) CreateIndex(name string, cfg index.Config) error {
	if name == "" {
		return fmt.Errorf("%w: empty index name", ErrInvalidParam)
	}

	cfg = cfg.WithDefaults()
	if cfg.Dimension <= 0 || cfg.MaxElements <= 0 {
		return fmt.Errorf("%w: dimension and max elements must be positive", ErrInvalidParam)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.indices[name]; ok {
		return fmt.Errorf("%w: %q", ErrIndexExists, name)
	}

	idx, err := hnsw.New(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParam, err)
	}

	db.indices[name] = &entry{idx: idx}
	db.logger.InfoContext(context.Background(), "index created",
		"index", name,
		"dimension", cfg.Dimension,
		"max_elements", cfg.MaxElements,
		"metric", string(cfg.Metric),
	)

	return nil
}

// DeleteIndex removes the named index from the registry. In-flight
// operations holding the entry lock finish first.
func (db *VectorDB) DeleteIndex(name string) error {
	db.mu.Lock()
	e, ok := db.indices[name]
	if !ok {
		db.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrIndexNotFound, name)
	}
	delete(db.indices, name)
	db.mu.Unlock()

	// Wait for writers that still hold the entry.
	e.mu.Lock()
	e.mu.Unlock() //nolint:staticcheck // barrier, not a critical section

	db.logger.InfoContext(context.Background(), "index deleted", "index", name)

	return nil
}

// HasIndex reports whether the named index is registered.
func (db *VectorDB) HasIndex(name string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, ok := db.indices[name]
	return ok
}

// ListIndices returns the registered index names in no particular order.
func (db *VectorDB) ListIndices() []string {
	db.mu.Lock()
	defer db.mu.Unlock()

	names := make([]string, 0, len(db.indices))
	for name := range db.indices {
		names = append(names, name)
	}
	return names
}

// lookup finds the entry for name and locks it while still holding the
// registry mutex, so DeleteIndex cannot tear the entry down in between.
// For write locks it also validates the vector dimension up front. The
// registry mutex is released before returning; the caller owns the entry
// lock and must release it via the returned unlock func.
func (db *VectorDB) lookup(name string, vec []float32, write bool) (*entry, func(), error) {
	db.mu.Lock()

	e, ok := db.indices[name]
	if !ok {
		db.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %q", ErrIndexNotFound, name)
	}

	if vec != nil {
		if dim := e.idx.Config().Dimension; len(vec) != dim {
			db.mu.Unlock()
			return nil, nil, &DimensionMismatchError{Expected: dim, Actual: len(vec)}
		}
	}

	if write {
		e.mu.Lock()
	} else {
		e.mu.RLock()
	}
	db.mu.Unlock()

	if write {
		return e, e.mu.Unlock, nil
	}
	return e, e.mu.RUnlock, nil
}

// AddVector inserts a vector under label, replacing any previous vector
// stored for the same label.
func (db *VectorDB) AddVector(name string, vec []float32, label uint64) error {
	start := time.Now()

	e, unlock, err := db.lookup(name, vec, true)
	if err != nil {
		db.metrics.RecordAdd(time.Since(start), err)
		return err
	}
	defer unlock()

	err = translateError(e.idx.Add(vec, label))
	db.metrics.RecordAdd(time.Since(start), err)
	db.logger.LogAdd(context.Background(), name, label, err)

	return err
}

// UpdateVector replaces the vector stored under label, inserting it if the
// label is new. It is an alias for AddVector; both are upserts.
func (db *VectorDB) UpdateVector(name string, vec []float32, label uint64) error {
	return db.AddVector(name, vec, label)
}

// DeleteVector logically removes the vector stored under label. The size
// reported by IndexSize does not shrink.
func (db *VectorDB) DeleteVector(name string, label uint64) error {
	start := time.Now()

	e, unlock, err := db.lookup(name, nil, true)
	if err != nil {
		db.metrics.RecordDelete(time.Since(start), err)
		return err
	}
	defer unlock()

	err = translateError(e.idx.Delete(label))
	db.metrics.RecordDelete(time.Since(start), err)
	db.logger.LogDelete(context.Background(), name, label, err)

	return err
}

// GetVector returns a copy of the vector stored under label.
func (db *VectorDB) GetVector(name string, label uint64) ([]float32, error) {
	e, unlock, err := db.lookup(name, nil, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	vec, err := e.idx.Get(label)
	return vec, translateError(err)
}

// Search returns up to k nearest neighbors of query, ordered by ascending
// distance. Deleted labels never appear in the results.
func (db *VectorDB) Search(name string, query []float32, k int) ([]SearchResult, error) {
	start := time.Now()

	e, unlock, err := db.lookup(name, query, false)
	if err != nil {
		db.metrics.RecordSearch(k, time.Since(start), err)
		return nil, err
	}
	defer unlock()

	results, err := e.idx.Search(query, k)
	err = translateError(err)
	db.metrics.RecordSearch(k, time.Since(start), err)
	db.logger.LogSearch(context.Background(), name, k, len(results), err)

	return results, err
}

// SetEFSearch tunes the search beam width of the named index.
func (db *VectorDB) SetEFSearch(name string, ef int) error {
	e, unlock, err := db.lookup(name, nil, true)
	if err != nil {
		return err
	}
	defer unlock()

	return translateError(e.idx.SetEF(ef))
}

// IndexSize returns the number of labels ever inserted into the named
// index. Logical deletes do not shrink it.
func (db *VectorDB) IndexSize(name string) (int, error) {
	e, unlock, err := db.lookup(name, nil, false)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return e.idx.Len(), nil
}

// IndexCapacity returns the maximum number of labels the named index can
// hold.
func (db *VectorDB) IndexCapacity(name string) (int, error) {
	e, unlock, err := db.lookup(name, nil, false)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return e.idx.Capacity(), nil
}

// SaveIndex writes a snapshot of the named index to path, plus a sidecar
// metadata record at path+".meta" that LoadIndex needs to reconstruct the
// index configuration.
func (db *VectorDB) SaveIndex(name, path string) error {
	e, unlock, err := db.lookup(name, nil, false)
	if err != nil {
		return err
	}
	defer unlock()

	err = saveSnapshot(e.idx, path)
	db.logger.LogSnapshot(context.Background(), name, path, err)

	return err
}

// LoadIndex restores an index from a snapshot written by SaveIndex and
// registers it under name. The sidecar metadata record at path+".meta"
// must be present.
func (db *VectorDB) LoadIndex(name, path string) error {
	if name == "" {
		return fmt.Errorf("%w: empty index name", ErrInvalidParam)
	}

	db.mu.Lock()
	if _, ok := db.indices[name]; ok {
		db.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrIndexExists, name)
	}
	db.mu.Unlock()

	cfg, err := readMeta(path + ".meta")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	idx, err := hnsw.Load(bufio.NewReader(f), cfg)
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	// Re-check: another goroutine may have taken the name while the
	// snapshot was being read.
	if _, ok := db.indices[name]; ok {
		return fmt.Errorf("%w: %q", ErrIndexExists, name)
	}
	db.indices[name] = &entry{idx: idx}

	db.logger.InfoContext(context.Background(), "index loaded",
		"index", name,
		"filename", path,
		"size", idx.Len(),
	)

	return nil
}

// SaveAll snapshots every registered index into dir, one <name>.index file
// plus its .meta sidecar per index. Saves run concurrently with per-entry
// read locks, so writers to other indices are not blocked.
func (db *VectorDB) SaveAll(dir string) error {
	start := time.Now()

	if dir == "" {
		return fmt.Errorf("%w: empty directory", ErrInvalidParam)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	db.mu.Lock()
	entries := make(map[string]*entry, len(db.indices))
	for name, e := range db.indices {
		entries[name] = e
	}
	db.mu.Unlock()

	g := new(errgroup.Group)
	g.SetLimit(saveConcurrency)

	for name, e := range entries {
		g.Go(func() error {
			e.mu.RLock()
			defer e.mu.RUnlock()

			path := filepath.Join(dir, name+".index")
			if err := saveSnapshot(e.idx, path); err != nil {
				return fmt.Errorf("save index %q: %w", name, err)
			}
			return nil
		})
	}

	err := g.Wait()
	db.metrics.RecordFlush(len(entries), time.Since(start), err)
	db.logger.LogFlush(context.Background(), dir, len(entries), err)

	return err
}

// LoadAll restores every *.index snapshot found in dir, registering each
// under its filename stem.
func (db *VectorDB) LoadAll(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.index"))
	if err != nil {
		return fmt.Errorf("scan snapshot dir: %w", err)
	}

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".index")
		if err := db.LoadIndex(name, path); err != nil {
			return err
		}
	}

	return nil
}

// saveSnapshot writes the graph snapshot and its sidecar metadata record.
// The sidecar keeps the construction config out of the snapshot body, in a
// format that stays readable without decoding the graph:
//
//	<dimension> <max_elements>\n<metric>\n
func saveSnapshot(idx index.Index, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := idx.SaveTo(w); err != nil {
		_ = f.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	cfg := idx.Config()
	meta := fmt.Sprintf("%d %d\n%s\n", cfg.Dimension, cfg.MaxElements, cfg.Metric)
	if err := os.WriteFile(path+".meta", []byte(meta), 0o644); err != nil {
		return fmt.Errorf("write snapshot metadata: %w", err)
	}

	return nil
}

// readMeta parses a sidecar metadata record. A missing metric line falls
// back to l2, matching snapshots written before the metric was recorded.
func readMeta(path string) (index.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return index.Config{}, fmt.Errorf("read snapshot metadata: %w", err)
	}

	var cfg index.Config
	if _, err := fmt.Sscanf(string(data), "%d %d", &cfg.Dimension, &cfg.MaxElements); err != nil {
		return index.Config{}, fmt.Errorf("parse snapshot metadata %s: %w", path, err)
	}
	if cfg.Dimension <= 0 || cfg.MaxElements <= 0 {
		return index.Config{}, fmt.Errorf("%w: snapshot metadata %s", ErrInvalidParam, path)
	}

	cfg.Metric = index.MetricL2
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) > 1 {
		if m := index.Metric(strings.TrimSpace(lines[1])); m.Valid() {
			cfg.Metric = m
		}
	}

	return cfg.WithDefaults(), nil
}
