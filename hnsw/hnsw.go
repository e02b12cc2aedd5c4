// Package hnsw implements the index.Index capability as a Hierarchical
// Navigable Small World graph.
//
// Vectors are stored under caller-assigned uint64 labels. Updates tombstone
// the previous graph node and insert a replacement under the same label;
// deletes are logical, tracked in a roaring bitmap and filtered out of
// search results. Stored vectors are kept as inserted, so Get returns them
// bit-exact regardless of metric.
package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/bits-and-blooms/bitset"

	"github.com/memvec/memvec/index"
)

// Compile time check to ensure Index satisfies the capability interface.
var _ index.Index = (*Index)(nil)

// node is a vertex in the HNSW graph. Fields are exported for gob.
type node struct {
	Connections [][]uint32 // links per layer, indexed 0..Layer
	Vector      []float32
	Layer       int
	Label       uint64
}

// Options configure an Index beyond its construction Config.
type Options struct {
	// Heuristic selects the neighbour-selection strategy: the heuristic
	// algorithm (true) or naive closest-M (false).
	Heuristic bool

	// Compression selects the snapshot compression written by SaveTo.
	Compression Compression
}

// DefaultOptions are applied by New before any option functions run.
var DefaultOptions = Options{
	Heuristic:   true,
	Compression: CompressionZSTD,
}

// Index is an HNSW graph over labelled float32 vectors.
type Index struct {
	mu sync.RWMutex

	cfg  index.Config
	opts Options
	dist index.DistanceFunc

	mmax  int     // max connections per element per layer
	mmax0 int     // max for layer 0
	ml    float64 // normalization factor for level generation

	ep       uint32 // entry point node id
	maxLevel int

	nodes    []*node           // id 0 is a sentinel entry node without a label
	labels   map[uint64]uint32 // label -> current node id
	deleted  *roaring64.Bitmap // logically deleted labels
	count    int               // labels ever inserted; never decremented
	tombs    int               // superseded or deleted graph nodes
	efSearch int

	rng *rand.Rand
}

// New creates an empty index for the given config. Dimension and
// MaxElements must be positive; the remaining parameters are defaulted via
// Config.WithDefaults.
func New(cfg index.Config, optFns ...func(o *Options)) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.MaxElements <= 0 {
		return nil, fmt.Errorf("max elements must be positive, got %d", cfg.MaxElements)
	}
	if !cfg.WithDefaults().Metric.Valid() {
		return nil, fmt.Errorf("unsupported metric %q", cfg.Metric)
	}

	cfg = cfg.WithDefaults()
	if cfg.M < 2 {
		// M == 1 would make the level normalization factor divide by zero.
		cfg.M = 2
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &Index{
		cfg:      cfg,
		opts:     opts,
		dist:     cfg.Metric.Func(),
		mmax:     cfg.M,
		mmax0:    2 * cfg.M,
		ml:       1 / math.Log(float64(cfg.M)),
		labels:   make(map[uint64]uint32),
		deleted:  roaring64.New(),
		efSearch: cfg.EFConstruction,
		rng:      rand.New(rand.NewSource(cfg.RandomSeed)), //nolint:gosec // reproducible graph shape, not security
	}

	h.nodes = []*node{{
		Layer:       0,
		Vector:      make([]float32, cfg.Dimension),
		Connections: make([][]uint32, 1),
	}}

	return h, nil
}

// distance ignores the error return: all vectors inside the graph share the
// configured dimension, which is the only failure mode of the metric funcs.
func (h *Index) distance(v1, v2 []float32) float32 {
	d, _ := h.dist(v1, v2)
	return d
}

// Add stores vec under label. An existing label (including a deleted one)
// is upserted.
func (h *Index) Add(vec []float32, label uint64) error {
	if len(vec) != h.cfg.Dimension {
		return &index.DimensionMismatchError{Expected: h.cfg.Dimension, Actual: len(vec)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.upsert(vec, label)
}

// Update replaces the vector stored under label, inserting it when absent.
func (h *Index) Update(vec []float32, label uint64) error {
	return h.Add(vec, label)
}

func (h *Index) upsert(vec []float32, label uint64) error {
	_, exists := h.labels[label]

	if !exists && h.count >= h.cfg.MaxElements {
		return index.ErrIndexFull
	}

	// Copy so later caller mutation cannot corrupt the graph.
	vectorCopy := make([]float32, len(vec))
	copy(vectorCopy, vec)

	id := h.insert(vectorCopy, label)

	h.labels[label] = id
	h.deleted.Remove(label)

	if exists {
		// The superseded node stays in the graph as a tombstone.
		h.tombs++
	} else {
		h.count++
	}

	return nil
}

// insert adds a new graph node and returns its id. Callers hold the write
// lock.
func (h *Index) insert(vec []float32, label uint64) uint32 {
	id := uint32(len(h.nodes))
	layer := int(math.Floor(-math.Log(h.rng.Float64()) * h.ml))

	n := &node{
		Vector:      vec,
		Layer:       layer,
		Label:       label,
		Connections: make([][]uint32, layer+1),
	}

	// Greedy descent through the layers above the new node's top layer.
	currID := h.ep
	currDist := h.distance(h.nodes[currID].Vector, vec)

	for level := h.nodes[currID].Layer; level > layer; level-- {
		changed := true
		for changed {
			changed = false
			for _, neighbourID := range h.connections(h.nodes[currID], level) {
				if d := h.distance(h.nodes[neighbourID].Vector, vec); d < currDist {
					currID = neighbourID
					currDist = d
					changed = true
				}
			}
		}
	}

	// Link downwards from the entry layer.
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		topCandidates := h.searchLayer(vec, &queueItem{id: currID, distance: currDist}, h.cfg.EFConstruction, level)

		if h.opts.Heuristic {
			h.selectNeighboursHeuristic(topCandidates, h.cfg.M)
		} else {
			h.selectNeighboursSimple(topCandidates, h.cfg.M)
		}

		n.Connections[level] = make([]uint32, topCandidates.Len())
		for i := topCandidates.Len() - 1; i >= 0; i-- {
			candidate, _ := heap.Pop(topCandidates).(*queueItem)
			n.Connections[level][i] = candidate.id
			// Closest surviving candidate seeds the next layer down.
			currID = candidate.id
			currDist = candidate.distance
		}
	}

	h.nodes = append(h.nodes, n)

	// Back-link the neighbours, making the node visible.
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		for _, neighbourID := range n.Connections[level] {
			h.link(neighbourID, id, level)
		}
	}

	if layer > h.maxLevel {
		h.ep = id
		h.maxLevel = layer
	}

	return id
}

// connections returns n's links at level, tolerating nodes whose top layer
// is below level.
func (h *Index) connections(n *node, level int) []uint32 {
	if level >= len(n.Connections) {
		return nil
	}
	return n.Connections[level]
}

// link connects first -> second at level, pruning back to the per-layer
// connection budget when exceeded.
func (h *Index) link(first, second uint32, level int) {
	maxConnections := h.mmax
	if level == 0 {
		// HNSW allows double the connections on the bottom layer.
		maxConnections = h.mmax0
	}

	n := h.nodes[first]
	if level >= len(n.Connections) {
		return
	}

	n.Connections[level] = append(n.Connections[level], second)
	if len(n.Connections[level]) <= maxConnections {
		return
	}

	topCandidates := &priorityQueue{max: true}
	heap.Init(topCandidates)

	for _, id := range n.Connections[level] {
		heap.Push(topCandidates, &queueItem{
			id:       id,
			distance: h.distance(n.Vector, h.nodes[id].Vector),
		})
	}

	if h.opts.Heuristic {
		h.selectNeighboursHeuristic(topCandidates, maxConnections)
	} else {
		h.selectNeighboursSimple(topCandidates, maxConnections)
	}

	n.Connections[level] = make([]uint32, topCandidates.Len())
	for i := topCandidates.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(topCandidates).(*queueItem)
		n.Connections[level][i] = item.id
	}
}

// searchLayer explores one layer of the graph starting from ep, returning a
// max-heap of the ef closest nodes found.
func (h *Index) searchLayer(q []float32, ep *queueItem, ef int, level int) *priorityQueue {
	var visited bitset.BitSet
	visited.Set(uint(ep.id))

	candidates := &priorityQueue{}
	heap.Init(candidates)
	heap.Push(candidates, &queueItem{id: ep.id, distance: ep.distance})

	topCandidates := &priorityQueue{max: true}
	heap.Init(topCandidates)
	heap.Push(topCandidates, &queueItem{id: ep.id, distance: ep.distance})

	for candidates.Len() > 0 {
		lowerBound := topCandidates.top().distance

		candidate, _ := heap.Pop(candidates).(*queueItem)
		if candidate.distance > lowerBound {
			break
		}

		for _, neighbourID := range h.connections(h.nodes[candidate.id], level) {
			if visited.Test(uint(neighbourID)) {
				continue
			}
			visited.Set(uint(neighbourID))

			distance := h.distance(q, h.nodes[neighbourID].Vector)
			item := &queueItem{id: neighbourID, distance: distance}

			if topCandidates.Len() < ef {
				heap.Push(topCandidates, item)
				heap.Push(candidates, &queueItem{id: neighbourID, distance: distance})
			} else if topCandidates.top().distance > distance {
				heap.Pop(topCandidates)
				heap.Push(topCandidates, item)
				heap.Push(candidates, &queueItem{id: neighbourID, distance: distance})
			}
		}
	}

	return topCandidates
}

// selectNeighboursSimple keeps the M closest candidates.
func (h *Index) selectNeighboursSimple(topCandidates *priorityQueue, m int) {
	for topCandidates.Len() > m {
		_ = heap.Pop(topCandidates)
	}
}

// selectNeighboursHeuristic keeps up to M candidates preferring those that
// are closer to the base point than to any already-kept neighbour, which
// spreads links across clusters.
func (h *Index) selectNeighboursHeuristic(topCandidates *priorityQueue, m int) {
	if topCandidates.Len() <= m {
		return
	}

	// Re-order into a min-heap so we consider the closest first.
	closest := &priorityQueue{}
	heap.Init(closest)
	for topCandidates.Len() > 0 {
		item, _ := heap.Pop(topCandidates).(*queueItem)
		heap.Push(closest, item)
	}

	kept := make([]*queueItem, 0, m)
	discarded := make([]*queueItem, 0)

	for closest.Len() > 0 && len(kept) < m {
		item, _ := heap.Pop(closest).(*queueItem)

		good := true
		for _, k := range kept {
			if h.distance(h.nodes[k.id].Vector, h.nodes[item.id].Vector) < item.distance {
				good = false
				break
			}
		}

		if good {
			kept = append(kept, item)
		} else {
			discarded = append(discarded, item)
		}
	}

	for _, item := range discarded {
		if len(kept) >= m {
			break
		}
		kept = append(kept, item)
	}

	for _, item := range kept {
		heap.Push(topCandidates, item)
	}
}

// Delete logically removes label. The reported Len does not decrease.
func (h *Index) Delete(label uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.labels[label]; !ok || h.deleted.Contains(label) {
		return index.ErrElementNotFound
	}

	h.deleted.Add(label)
	h.tombs++

	return nil
}

// Get returns a copy of the vector stored under label.
func (h *Index) Get(label uint64) ([]float32, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	id, ok := h.labels[label]
	if !ok || h.deleted.Contains(label) {
		return nil, index.ErrElementNotFound
	}

	vec := make([]float32, h.cfg.Dimension)
	copy(vec, h.nodes[id].Vector)

	return vec, nil
}

// Search returns up to k live labels ordered by ascending distance.
func (h *Index) Search(query []float32, k int) ([]index.SearchResult, error) {
	if len(query) != h.cfg.Dimension {
		return nil, &index.DimensionMismatchError{Expected: h.cfg.Dimension, Actual: len(query)}
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return nil, nil
	}

	// Greedy descent to layer 1.
	currID := h.ep
	currDist := h.distance(query, h.nodes[h.ep].Vector)

	for level := h.maxLevel; level > 0; level-- {
		changed := true
		for changed {
			changed = false
			for _, neighbourID := range h.connections(h.nodes[currID], level) {
				if d := h.distance(h.nodes[neighbourID].Vector, query); d < currDist {
					currID = neighbourID
					currDist = d
					changed = true
				}
			}
		}
	}

	// Over-collect by the tombstone count so filtering can still yield k
	// live results.
	ef := max(h.efSearch, k+h.tombs)
	topCandidates := h.searchLayer(query, &queueItem{id: currID, distance: currDist}, ef, 0)

	ordered := make([]*queueItem, topCandidates.Len())
	for i := topCandidates.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(topCandidates).(*queueItem)
		ordered[i] = item
	}

	results := make([]index.SearchResult, 0, k)
	for _, item := range ordered {
		if !h.live(item.id) {
			continue
		}
		results = append(results, index.SearchResult{
			Label:    h.nodes[item.id].Label,
			Distance: item.distance,
		})
		if len(results) == k {
			break
		}
	}

	return results, nil
}

// live reports whether node id is the current, non-deleted home of its
// label. The sentinel entry node is never live.
func (h *Index) live(id uint32) bool {
	if id == 0 {
		return false
	}

	n := h.nodes[id]
	current, ok := h.labels[n.Label]

	return ok && current == id && !h.deleted.Contains(n.Label)
}

// SetEF tunes the search-time candidate list size.
func (h *Index) SetEF(ef int) error {
	if ef <= 0 {
		return index.ErrInvalidEF
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.efSearch = ef

	return nil
}

// Len reports the number of labels ever inserted.
func (h *Index) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Capacity reports the configured MaxElements.
func (h *Index) Capacity() int {
	return h.cfg.MaxElements
}

// Config returns the construction parameters.
func (h *Index) Config() index.Config {
	return h.cfg
}
