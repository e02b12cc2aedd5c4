package memvec

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memvec/memvec/index"
)

func newTestDB(t *testing.T, optFns ...Option) *VectorDB {
	t.Helper()

	db := New(optFns...)
	t.Cleanup(db.Close)

	return db
}

func TestCreateIndex(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.CreateIndex("notes", index.Config{Dimension: 4, MaxElements: 100}))
	assert.True(t, db.HasIndex("notes"))

	t.Run("duplicate name", func(t *testing.T) {
		err := db.CreateIndex("notes", index.Config{Dimension: 4, MaxElements: 100})
		require.ErrorIs(t, err, ErrIndexExists)
		require.ErrorIs(t, err, ErrInvalidParam)
	})

	t.Run("zero dimension", func(t *testing.T) {
		err := db.CreateIndex("bad", index.Config{MaxElements: 100})
		require.ErrorIs(t, err, ErrInvalidParam)
	})

	t.Run("zero max elements", func(t *testing.T) {
		err := db.CreateIndex("bad", index.Config{Dimension: 4})
		require.ErrorIs(t, err, ErrInvalidParam)
	})

	t.Run("empty name", func(t *testing.T) {
		err := db.CreateIndex("", index.Config{Dimension: 4, MaxElements: 100})
		require.ErrorIs(t, err, ErrInvalidParam)
	})
}

func TestDeleteIndex(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.CreateIndex("notes", index.Config{Dimension: 4, MaxElements: 100}))
	require.NoError(t, db.DeleteIndex("notes"))
	assert.False(t, db.HasIndex("notes"))

	require.ErrorIs(t, db.DeleteIndex("notes"), ErrIndexNotFound)
}

func TestListIndices(t *testing.T) {
	db := newTestDB(t)

	assert.Empty(t, db.ListIndices())

	require.NoError(t, db.CreateIndex("a", index.Config{Dimension: 2, MaxElements: 10}))
	require.NoError(t, db.CreateIndex("b", index.Config{Dimension: 2, MaxElements: 10}))

	assert.ElementsMatch(t, []string{"a", "b"}, db.ListIndices())
}

func TestVectorCRUD(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateIndex("notes", index.Config{Dimension: 2, MaxElements: 10}))

	require.NoError(t, db.AddVector("notes", []float32{1, 0}, 1))

	vec, err := db.GetVector("notes", 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)

	require.NoError(t, db.UpdateVector("notes", []float32{0, 1}, 1))
	vec, err = db.GetVector("notes", 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)

	require.NoError(t, db.DeleteVector("notes", 1))
	_, err = db.GetVector("notes", 1)
	require.ErrorIs(t, err, ErrNotFound)

	t.Run("delete missing label", func(t *testing.T) {
		require.ErrorIs(t, db.DeleteVector("notes", 42), ErrNotFound)
	})

	t.Run("unknown index", func(t *testing.T) {
		require.ErrorIs(t, db.AddVector("nope", []float32{1, 0}, 1), ErrIndexNotFound)
		require.ErrorIs(t, db.DeleteVector("nope", 1), ErrIndexNotFound)
		_, err := db.GetVector("nope", 1)
		require.ErrorIs(t, err, ErrIndexNotFound)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		err := db.AddVector("notes", []float32{1, 2, 3}, 2)

		var dimErr *DimensionMismatchError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 2, dimErr.Expected)
		assert.Equal(t, 3, dimErr.Actual)
	})
}

func TestSearchCosineOrdering(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateIndex("notes", index.Config{
		Dimension:   4,
		MaxElements: 10,
		Metric:      index.MetricCosine,
	}))

	require.NoError(t, db.AddVector("notes", []float32{1, 0, 0, 0}, 0))
	require.NoError(t, db.AddVector("notes", []float32{0, 1, 0, 0}, 1))
	require.NoError(t, db.AddVector("notes", []float32{1, 1, 0, 0}, 2))

	results, err := db.Search("notes", []float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, uint64(0), results[0].Label)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.Equal(t, uint64(2), results[1].Label)
	assert.Equal(t, uint64(1), results[2].Label)
	assert.InDelta(t, 1, results[2].Distance, 1e-6)
}

func TestSearchErrors(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateIndex("notes", index.Config{Dimension: 2, MaxElements: 10}))

	t.Run("unknown index", func(t *testing.T) {
		_, err := db.Search("nope", []float32{1, 0}, 1)
		require.ErrorIs(t, err, ErrIndexNotFound)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := db.Search("notes", []float32{1}, 1)

		var dimErr *DimensionMismatchError
		require.ErrorAs(t, err, &dimErr)
	})

	t.Run("invalid k", func(t *testing.T) {
		require.NoError(t, db.AddVector("notes", []float32{1, 0}, 1))

		_, err := db.Search("notes", []float32{1, 0}, 0)
		require.ErrorIs(t, err, ErrInvalidParam)
	})
}

func TestSetEFSearch(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateIndex("notes", index.Config{Dimension: 2, MaxElements: 10}))

	require.NoError(t, db.SetEFSearch("notes", 128))
	require.ErrorIs(t, db.SetEFSearch("notes", 0), ErrInvalidParam)
	require.ErrorIs(t, db.SetEFSearch("nope", 128), ErrIndexNotFound)
}

func TestIndexSizeAndCapacity(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateIndex("notes", index.Config{Dimension: 2, MaxElements: 50}))

	size, err := db.IndexSize("notes")
	require.NoError(t, err)
	assert.Equal(t, 0, size)

	require.NoError(t, db.AddVector("notes", []float32{1, 0}, 1))
	require.NoError(t, db.AddVector("notes", []float32{0, 1}, 2))
	require.NoError(t, db.DeleteVector("notes", 1))

	// Logical deletes never shrink the size.
	size, err = db.IndexSize("notes")
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	capacity, err := db.IndexCapacity("notes")
	require.NoError(t, err)
	assert.Equal(t, 50, capacity)
}

func TestSaveAndLoadIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.index")

	db := newTestDB(t)
	require.NoError(t, db.CreateIndex("notes", index.Config{
		Dimension:   3,
		MaxElements: 20,
		Metric:      index.MetricCosine,
	}))
	require.NoError(t, db.AddVector("notes", []float32{1, 0, 0}, 0))
	require.NoError(t, db.AddVector("notes", []float32{0, 1, 0}, 1))
	require.NoError(t, db.DeleteVector("notes", 1))

	require.NoError(t, db.SaveIndex("notes", path))

	t.Run("sidecar format", func(t *testing.T) {
		meta, err := os.ReadFile(path + ".meta")
		require.NoError(t, err)
		assert.Equal(t, "3 20\ncosine\n", string(meta))
	})

	t.Run("load into fresh registry", func(t *testing.T) {
		db2 := newTestDB(t)
		require.NoError(t, db2.LoadIndex("restored", path))

		size, err := db2.IndexSize("restored")
		require.NoError(t, err)
		assert.Equal(t, 2, size)

		vec, err := db2.GetVector("restored", 0)
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0, 0}, vec)

		_, err = db2.GetVector("restored", 1)
		require.ErrorIs(t, err, ErrNotFound)

		// Metric survives through the sidecar.
		results, err := db2.Search("restored", []float32{2, 0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.InDelta(t, 0, results[0].Distance, 1e-6)
	})

	t.Run("load over existing name", func(t *testing.T) {
		require.ErrorIs(t, db.LoadIndex("notes", path), ErrIndexExists)
	})

	t.Run("load without sidecar", func(t *testing.T) {
		require.NoError(t, os.Rename(path+".meta", path+".meta.gone"))
		defer func() {
			require.NoError(t, os.Rename(path+".meta.gone", path+".meta"))
		}()

		db2 := newTestDB(t)
		require.Error(t, db2.LoadIndex("orphan", path))
	})

	t.Run("save unknown index", func(t *testing.T) {
		require.ErrorIs(t, db.SaveIndex("nope", path), ErrIndexNotFound)
	})
}

func TestSaveAllLoadAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")

	db := newTestDB(t)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, db.CreateIndex(name, index.Config{Dimension: 2, MaxElements: 10}))
		require.NoError(t, db.AddVector(name, []float32{1, 0}, 0))
	}

	require.NoError(t, db.SaveAll(dir))

	for _, name := range []string{"alpha", "beta", "gamma"} {
		_, err := os.Stat(filepath.Join(dir, name+".index"))
		require.NoError(t, err)
		_, err = os.Stat(filepath.Join(dir, name+".index.meta"))
		require.NoError(t, err)
	}

	db2 := newTestDB(t)
	require.NoError(t, db2.LoadAll(dir))
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, db2.ListIndices())

	vec, err := db2.GetVector("beta", 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)

	t.Run("empty dir", func(t *testing.T) {
		require.ErrorIs(t, db.SaveAll(""), ErrInvalidParam)
	})
}

func TestConcurrentVectorOps(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CreateIndex("notes", index.Config{Dimension: 2, MaxElements: 1000}))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				label := uint64(w*50 + i)
				_ = db.AddVector("notes", []float32{float32(label), 1}, label)
				_, _ = db.Search("notes", []float32{float32(label), 1}, 5)
			}
		}()
	}
	wg.Wait()

	size, err := db.IndexSize("notes")
	require.NoError(t, err)
	assert.Equal(t, 400, size)
}

func TestMetricsCollection(t *testing.T) {
	collector := &BasicMetricsCollector{}
	db := newTestDB(t, WithMetricsCollector(collector))

	require.NoError(t, db.CreateIndex("notes", index.Config{Dimension: 2, MaxElements: 10}))
	require.NoError(t, db.AddVector("notes", []float32{1, 0}, 1))
	_, err := db.Search("notes", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.NoError(t, db.DeleteVector("notes", 1))
	require.ErrorIs(t, db.DeleteVector("notes", 1), ErrNotFound)

	stats := collector.GetStats()
	assert.Equal(t, int64(1), stats.AddCount)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(2), stats.DeleteCount)
	assert.Equal(t, int64(1), stats.DeleteErrors)
}

func TestCloseDropsIndices(t *testing.T) {
	db := New()
	require.NoError(t, db.CreateIndex("notes", index.Config{Dimension: 2, MaxElements: 10}))

	db.Close()

	assert.False(t, db.HasIndex("notes"))
}

func ExampleVectorDB_Search() {
	db := New()
	defer db.Close()

	_ = db.CreateIndex("notes", index.Config{Dimension: 2, MaxElements: 10})
	_ = db.AddVector("notes", []float32{1, 0}, 1)
	_ = db.AddVector("notes", []float32{0, 1}, 2)

	results, _ := db.Search("notes", []float32{1, 0}, 1)
	fmt.Println(results[0].Label)
	// Output: 1
}
