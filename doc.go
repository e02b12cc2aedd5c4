// Package memvec is an embedded, persistent vector-storage engine.
//
// A VectorDB is a registry of named HNSW indices. Each index maps external
// uint64 labels to float32 vectors and answers k-nearest-neighbor queries
// under one of three metrics (squared L2, inner product, cosine). Snapshots
// persist every index to disk, either on demand or through a background
// auto-flush, and the docstore subpackage binds each label to a JSON
// document so vectors and their source text stay consistent.
//
// Basic usage:
//
//	db := memvec.New()
//	defer db.Close()
//
//	_ = db.CreateIndex("notes", index.Config{Dimension: 4, MaxElements: 1000})
//	_ = db.AddVector("notes", []float32{0.1, 0.2, 0.3, 0.4}, 1)
//
//	results, _ := db.Search("notes", []float32{0.1, 0.2, 0.3, 0.4}, 5)
package memvec
