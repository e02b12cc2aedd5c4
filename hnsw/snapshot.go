package hnsw

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/memvec/memvec/index"
)

// Compression selects the snapshot body compression.
type Compression uint8

// Snapshot compression codes. The code is persisted in the header, so the
// values are part of the on-disk format and must not be reordered.
const (
	CompressionNone Compression = iota
	CompressionZSTD
	CompressionLZ4
)

// WithCompression configures the compression SaveTo writes.
func WithCompression(c Compression) func(o *Options) {
	return func(o *Options) {
		o.Compression = c
	}
}

// magic identifies a graph snapshot. The trailing byte is the format
// version.
var magic = [4]byte{'M', 'V', 'X', 1}

// snapshot is the gob payload of a saved graph. The construction config is
// deliberately not part of it: the registry keeps that in the sidecar
// metadata record and passes it back in on Load.
type snapshot struct {
	EP       uint32
	MaxLevel int
	Nodes    []*node
	Labels   map[uint64]uint32
	Deleted  []uint64
	Count    int
	Tombs    int
	EFSearch int
}

// SaveTo writes a snapshot of the index to w.
func (h *Index) SaveTo(w io.Writer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	header := make([]byte, 5)
	copy(header, magic[:])
	header[4] = byte(h.opts.Compression)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}

	snap := snapshot{
		EP:       h.ep,
		MaxLevel: h.maxLevel,
		Nodes:    h.nodes,
		Labels:   h.labels,
		Deleted:  h.deleted.ToArray(),
		Count:    h.count,
		Tombs:    h.tombs,
		EFSearch: h.efSearch,
	}

	switch h.opts.Compression {
	case CompressionZSTD:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		if err := gob.NewEncoder(zw).Encode(&snap); err != nil {
			_ = zw.Close()
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return zw.Close()
	case CompressionLZ4:
		lw := lz4.NewWriter(w)
		if err := gob.NewEncoder(lw).Encode(&snap); err != nil {
			_ = lw.Close()
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return lw.Close()
	default:
		if err := gob.NewEncoder(w).Encode(&snap); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return nil
	}
}

// Load restores an index from a snapshot written by SaveTo. The
// construction config is supplied by the caller, typically read back from
// the sidecar metadata record, because the snapshot does not carry it.
func Load(r io.Reader, cfg index.Config, optFns ...func(o *Options)) (*Index, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	if [4]byte(header[:4]) != magic {
		return nil, fmt.Errorf("bad snapshot magic %x", header[:4])
	}

	h, err := New(cfg, optFns...)
	if err != nil {
		return nil, err
	}

	var snap snapshot
	switch Compression(header[4]) {
	case CompressionZSTD:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer zr.Close()
		if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	case CompressionLZ4:
		if err := gob.NewDecoder(lz4.NewReader(r)).Decode(&snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	case CompressionNone:
		if err := gob.NewDecoder(r).Decode(&snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown snapshot compression %d", header[4])
	}

	if len(snap.Nodes) == 0 {
		return nil, fmt.Errorf("snapshot has no nodes")
	}
	for _, n := range snap.Nodes {
		if len(n.Vector) != cfg.Dimension {
			return nil, &index.DimensionMismatchError{Expected: cfg.Dimension, Actual: len(n.Vector)}
		}
	}

	h.ep = snap.EP
	h.maxLevel = snap.MaxLevel
	h.nodes = snap.Nodes
	h.labels = snap.Labels
	h.count = snap.Count
	h.tombs = snap.Tombs
	if snap.EFSearch > 0 {
		h.efSearch = snap.EFSearch
	}

	h.deleted.AddMany(snap.Deleted)

	return h, nil
}
