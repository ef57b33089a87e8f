package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestToSymDense(t *testing.T) {
	assert := assert.New(t)

	badMx := mat.NewDense(2, 1, []float64{0.5, 1.0})
	notSymMx := mat.NewDense(2, 2, []float64{0.5, 1.0, 2.0, 2.0})
	symMx := mat.NewDense(2, 2, []float64{0.5, 1.0, 1.0, 2.0})

	sym, err := ToSymDense(badMx)
	assert.Nil(sym)
	assert.Error(err)

	sym, err = ToSymDense(notSymMx)
	assert.Nil(sym)
	assert.Error(err)

	sym, err = ToSymDense(symMx)
	assert.NotNil(sym)
	assert.NoError(err)
}

func TestWeightedMeanCov(t *testing.T) {
	assert := assert.New(t)

	// two particles in 1-D, equal weights -> mean is the midpoint
	m := mat.NewDense(1, 2, []float64{1.0, 3.0})
	w := []float64{0.5, 0.5}

	mean, cov, err := WeightedMeanCov(m, w)
	assert.NoError(err)
	assert.InDelta(2.0, mean.AtVec(0), 1e-9)
	assert.Equal(1, cov.Symmetric())

	_, _, err = WeightedMeanCov(m, []float64{1.0})
	assert.Error(err)
}

func TestWeightedMeanCovMultivariateSpread(t *testing.T) {
	assert := assert.New(t)

	m := mat.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 6, 8,
	})
	w := []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}

	mean, cov, err := WeightedMeanCov(m, w)
	assert.NoError(err)
	assert.InDelta(2.0, mean.AtVec(0), 1e-9)
	assert.InDelta(6.0, mean.AtVec(1), 1e-9)
	assert.Greater(cov.At(0, 0), 0.0)
	assert.Greater(cov.At(1, 1), 0.0)
}
