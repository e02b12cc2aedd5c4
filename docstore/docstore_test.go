package docstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memvec/memvec"
)

type fakeProvider struct {
	vec        []float32
	configured bool
	calls      int
}

func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vec, nil
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *memvec.VectorDB) {
	t.Helper()

	db := memvec.New()
	t.Cleanup(db.Close)

	return New(t.TempDir(), db, opts...), db
}

func TestAddAssignsDenseIDs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	vec := make([]float32, 1536)
	vec[0] = 1

	id0, err := s.Add(ctx, "notes", "first", vec, 1536, "note", "test", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id0)

	id1, err := s.Add(ctx, "notes", "second", vec, 1536, "note", "test", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id1)
}

func TestAddTextWithoutProviderFallsBack(t *testing.T) {
	s, db := newTestStore(t)
	ctx := t.Context()

	id, err := s.AddText(ctx, "notes", "hello world", "note", "test", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	// The fallback stores a zero vector of the default embedding width.
	vec, err := db.GetVector("notes", id)
	require.NoError(t, err)
	require.Len(t, vec, 1536)
	assert.Equal(t, float32(0), vec[0])

	doc, err := s.Get(ctx, "notes", id)
	require.NoError(t, err)
	assert.Equal(t, "hello world", doc.Content)
	assert.Equal(t, 1536, doc.EmbeddingDim)
}

func TestAddTextWithProvider(t *testing.T) {
	p := &fakeProvider{vec: []float32{0.1, 0.2, 0.3}, configured: true}
	s, db := newTestStore(t, WithProvider(p))
	ctx := t.Context()

	id, err := s.AddText(ctx, "notes", "hello", "note", "test", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls)

	vec, err := db.GetVector("notes", id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestAddDimensionMismatch(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Add(t.Context(), "notes", "bad", []float32{1, 2}, 3, "note", "test", nil)

	var dimErr *memvec.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
}

func TestAddCompensatesVectorOnBodyFailure(t *testing.T) {
	db := memvec.New()
	t.Cleanup(db.Close)

	// Make <base>/documents a regular file so the body write cannot
	// create its directory.
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "documents"), []byte("x"), 0o644))

	s := New(base, db)

	_, err := s.Add(t.Context(), "notes", "doomed", []float32{1, 0}, 2, "note", "test", nil)
	require.Error(t, err)

	// The compensating delete removed the vector again.
	_, err = db.GetVector("notes", 0)
	require.ErrorIs(t, err, memvec.ErrNotFound)
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.EnsureIndex("notes", 2, 0))

	_, err := s.Get(t.Context(), "notes", 42)
	require.ErrorIs(t, err, memvec.ErrNotFound)
}

func TestSearchReturnsDocuments(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	id0, err := s.Add(ctx, "notes", "alpha", []float32{1, 0}, 2, "note", "a", nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, "notes", "beta", []float32{0, 1}, 2, "note", "b", nil)
	require.NoError(t, err)

	results, err := s.Search(ctx, "notes", []float32{1, 0}, 2, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, id0, results[0].Document.ID)
	assert.Equal(t, "alpha", results[0].Document.Content)
	assert.Equal(t, []float32{1, 0}, results[0].Document.Embedding)
}

func TestSearchSkipsUnloadableDocuments(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	id0, err := s.Add(ctx, "notes", "kept", []float32{1, 0}, 2, "note", "a", nil)
	require.NoError(t, err)
	id1, err := s.Add(ctx, "notes", "orphaned", []float32{0.9, 0.1}, 2, "note", "b", nil)
	require.NoError(t, err)

	// Remove one body behind the store's back; its label stays in the
	// index.
	require.NoError(t, os.Remove(s.docPath("notes", id1)))

	results, err := s.Search(ctx, "notes", []float32{1, 0}, 2, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id0, results[0].Document.ID)
}

func TestUpdate(t *testing.T) {
	s, db := newTestStore(t)
	ctx := t.Context()

	id, err := s.Add(ctx, "notes", "original", []float32{1, 0}, 2, "note", "test", nil)
	require.NoError(t, err)

	content := "revised"
	meta := json.RawMessage(`{"reviewed":true}`)
	require.NoError(t, s.Update(ctx, "notes", id, &content, []float32{0, 1}, 2, meta))

	doc, err := s.Get(ctx, "notes", id)
	require.NoError(t, err)
	assert.Equal(t, "revised", doc.Content)
	assert.JSONEq(t, `{"reviewed":true}`, string(doc.Metadata))

	vec, err := db.GetVector("notes", id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestUpdateMissingDocument(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.EnsureIndex("notes", 2, 0))

	content := "nope"
	err := s.Update(t.Context(), "notes", 9, &content, nil, 0, nil)
	require.ErrorIs(t, err, memvec.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, db := newTestStore(t)
	ctx := t.Context()

	id, err := s.Add(ctx, "notes", "to remove", []float32{1, 0}, 2, "note", "test", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "notes", id))

	_, err = s.Get(ctx, "notes", id)
	require.ErrorIs(t, err, memvec.ErrNotFound)
	_, err = db.GetVector("notes", id)
	require.ErrorIs(t, err, memvec.ErrNotFound)
}

func TestDeleteNonexistentLabelLeavesFile(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	id, err := s.Add(ctx, "notes", "kept", []float32{1, 0}, 2, "note", "test", nil)
	require.NoError(t, err)

	// First delete removes the vector; the second must fail before
	// touching any file.
	require.NoError(t, s.Delete(ctx, "notes", id))

	require.NoError(t, s.writeBody("notes", &Document{ID: id, Content: "restored"}))
	require.ErrorIs(t, s.Delete(ctx, "notes", id), memvec.ErrNotFound)

	_, err = os.Stat(s.docPath("notes", id))
	require.NoError(t, err)
}

func TestSearchByTime(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := t.Context()

	for i, content := range []string{"a", "b", "c"} {
		id, err := s.Add(ctx, "notes", content, []float32{float32(i), 1}, 2, "note", "test", nil)
		require.NoError(t, err)

		// Rewrite bodies with controlled timestamps.
		doc, err := s.readBody("notes", id)
		require.NoError(t, err)
		doc.Timestamp = int64(100 * (i + 1))
		require.NoError(t, s.writeBody("notes", doc))
	}

	t.Run("inclusive bounds", func(t *testing.T) {
		results, err := s.SearchByTime(ctx, "notes", 100, 200, 0)
		require.NoError(t, err)
		assert.Len(t, results, 2)
		for _, r := range results {
			assert.Equal(t, float32(0), r.Distance)
		}
	})

	t.Run("limit", func(t *testing.T) {
		results, err := s.SearchByTime(ctx, "notes", 0, 1000, 1)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("empty range", func(t *testing.T) {
		results, err := s.SearchByTime(ctx, "notes", 500, 600, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("unknown index", func(t *testing.T) {
		results, err := s.SearchByTime(ctx, "nope", 0, 1000, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestEnsureIndexIdempotent(t *testing.T) {
	s, db := newTestStore(t)

	require.NoError(t, s.EnsureIndex("notes", 4, 0))
	require.NoError(t, s.EnsureIndex("notes", 4, 0))

	capacity, err := db.IndexCapacity("notes")
	require.NoError(t, err)
	assert.Equal(t, defaultMaxElements, capacity)

	assert.ElementsMatch(t, []string{"notes"}, s.ListIndices())
}
