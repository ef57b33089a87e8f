package rnd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestWithCovN(t *testing.T) {
	assert := assert.New(t)

	src := New(1)
	cov := mat.NewSymDense(2, []float64{1.0, 0.0, 0.0, 1.0})

	samples, err := src.WithCovN(cov, 1000)
	assert.NoError(err)
	rows, cols := samples.Dims()
	assert.Equal(2, rows)
	assert.Equal(1000, cols)

	_, err = src.WithCovN(cov, 0)
	assert.Error(err)
}

func TestCategoricalDrawN(t *testing.T) {
	assert := assert.New(t)

	src := New(42)
	p := []float64{0.1, 0.2, 0.3, 0.4}

	counts := make([]float64, len(p))
	const n = 100000
	indices := src.CategoricalDrawN(p, n)
	assert.Len(indices, n)
	for _, idx := range indices {
		assert.True(idx >= 0 && idx < len(p))
		counts[idx]++
	}

	for i, c := range counts {
		assert.InDelta(p[i], c/float64(n), 0.01)
	}
}
