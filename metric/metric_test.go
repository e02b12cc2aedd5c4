package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	t.Run("Identical", func(t *testing.T) {
		d, err := SquaredL2([]float32{1, 2, 3}, []float32{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, float32(0), d)
	})

	t.Run("Known", func(t *testing.T) {
		d, err := SquaredL2([]float32{0, 0}, []float32{3, 4})
		require.NoError(t, err)
		assert.Equal(t, float32(25), d)
	})

	t.Run("SizeMismatch", func(t *testing.T) {
		_, err := SquaredL2([]float32{1}, []float32{1, 2})
		assert.ErrorIs(t, err, ErrSizeMismatch)
	})
}

func TestInnerProduct(t *testing.T) {
	d, err := InnerProduct([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, float32(0), d)

	d, err = InnerProduct([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, float32(1), d)
}

func TestCosine(t *testing.T) {
	t.Run("Parallel", func(t *testing.T) {
		d, err := Cosine([]float32{2, 0, 0}, []float32{5, 0, 0})
		require.NoError(t, err)
		assert.InDelta(t, 0, d, 1e-6)
	})

	t.Run("Orthogonal", func(t *testing.T) {
		d, err := Cosine([]float32{1, 0}, []float32{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 1, d, 1e-6)
	})

	t.Run("ZeroVector", func(t *testing.T) {
		d, err := Cosine([]float32{0, 0}, []float32{1, 1})
		require.NoError(t, err)
		assert.Equal(t, float32(1), d)
	})
}

func TestMagnitude(t *testing.T) {
	assert.InDelta(t, 5, Magnitude([]float32{3, 4}), 1e-6)
}
