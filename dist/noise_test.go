package dist

import (
	"testing"

	"github.com/nessmc/pfilter/rnd"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewGaussianRejectsDimensionMismatch(t *testing.T) {
	_, err := NewGaussian([]float64{0, 0}, mat.NewSymDense(1, []float64{1}))
	assert.Error(t, err)
}

func TestGaussianUnivariateSampleAndLogPDF(t *testing.T) {
	assert := assert.New(t)
	g, err := NewGaussian([]float64{1}, mat.NewSymDense(1, []float64{4}))
	assert.NoError(err)
	assert.Equal(1, g.Dim())
	assert.Equal([]float64{2}, g.Std())

	x := g.Sample(rnd.New(1), 5)
	rows, cols := x.Dims()
	assert.Equal(1, rows)
	assert.Equal(5, cols)

	lp := g.LogPDF(x)
	assert.Equal(5, lp.Len())
	for i := 0; i < 5; i++ {
		assert.Less(lp.AtVec(i), 0.0)
	}
}

func TestGaussianMultivariateSampleAndLogPDF(t *testing.T) {
	assert := assert.New(t)
	g, err := NewGaussian([]float64{0, 0}, mat.NewSymDense(2, []float64{1, 0, 0, 1}))
	assert.NoError(err)
	assert.Equal(2, g.Dim())

	x := g.Sample(rnd.New(2), 10)
	rows, cols := x.Dims()
	assert.Equal(2, rows)
	assert.Equal(10, cols)

	lp := g.LogPDF(x)
	assert.Equal(10, lp.Len())
}

func TestNoneAlwaysZero(t *testing.T) {
	assert := assert.New(t)
	n := NewNone(2)
	assert.Equal(2, n.Dim())
	assert.Equal([]float64{0, 0}, n.Std())

	x := n.Sample(rnd.New(1), 3)
	assert.True(mat.Equal(x, mat.NewDense(2, 3, nil)))

	lp := n.LogPDF(x)
	for i := 0; i < lp.Len(); i++ {
		assert.Equal(0.0, lp.AtVec(i))
	}
}
