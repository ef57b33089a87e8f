package ssm

import (
	"testing"

	"github.com/nessmc/pfilter/dist"
	"github.com/nessmc/pfilter/param"
	"github.com/nessmc/pfilter/proc"
	"github.com/nessmc/pfilter/rnd"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// linearAR1 builds xₜ = phi·xₜ₋₁ + sigmaH·ε, yₜ = xₜ + sigmaO·η -- scenario
// S2's model.
func linearAR1(t *testing.T, phi, sigmaH, sigmaO float64) *StateSpaceModel {
	phiP := param.NewFixed("phi", phi)

	hEps0, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	assert.NoError(t, err)
	hEps, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{sigmaH * sigmaH}))
	assert.NoError(t, err)

	f0 := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return mat.NewDense(1, 1, []float64{0}) }
	g0 := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return mat.NewDense(1, 1, []float64{1}) }
	f := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		out.Scale(theta[0].Value(), x)
		return out
	}
	gFn := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		for c := 0; c < n; c++ {
			out.Set(0, c, 1)
		}
		return out
	}
	hidden, err := proc.New(f0, f, g0, gFn, hEps0, hEps, phiP)
	assert.NoError(t, err)

	oEps, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{sigmaO * sigmaO}))
	assert.NoError(t, err)
	of := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return mat.DenseCopyOf(x) }
	og := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		for c := 0; c < n; c++ {
			out.Set(0, c, 1)
		}
		return out
	}
	observable := proc.NewObservable(of, og, oEps)

	return New(hidden, observable)
}

func TestSampleProducesExpectedShapes(t *testing.T) {
	assert := assert.New(t)

	m := linearAR1(t, 0.9, 1.0, 1.0)
	src := rnd.New(3)

	x, y, err := m.Sample(src, 50)
	assert.NoError(err)

	rows, cols := x.Dims()
	assert.Equal(1, rows)
	assert.Equal(50, cols)

	rows, cols = y.Dims()
	assert.Equal(1, rows)
	assert.Equal(50, cols)
}

func TestParamsOnlyIncludesTrainable(t *testing.T) {
	assert := assert.New(t)

	m := linearAR1(t, 0.9, 1.0, 1.0)
	assert.Empty(m.Params())
}
