package vectors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		v := []float32{1, 2, 3}
		assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	})

	t.Run("opposed vectors clamp to zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine([]float32{1, 0}, []float32{-1, 0}))
	})

	t.Run("mismatched dimensions", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine([]float32{1, 2}, []float32{1, 2, 3}))
	})

	t.Run("zero norm", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 2}))
	})
}

func TestIncrementalMean(t *testing.T) {
	t.Run("folds into running mean", func(t *testing.T) {
		mu := []float32{1, 1}
		got := IncrementalMean(mu, 2, []float32{4, 7})
		assert.InDelta(t, 2.0, float64(got[0]), 1e-6)
		assert.InDelta(t, 3.0, float64(got[1]), 1e-6)
	})

	t.Run("nil prior yields copy", func(t *testing.T) {
		v := []float32{3, 4}
		got := IncrementalMean(nil, 0, v)
		assert.Equal(t, v, got)
		got[0] = 99
		assert.Equal(t, float32(3), v[0])
	})

	t.Run("does not mutate inputs", func(t *testing.T) {
		mu := []float32{1, 1}
		_ = IncrementalMean(mu, 1, []float32{3, 3})
		assert.Equal(t, []float32{1, 1}, mu)
	})
}
