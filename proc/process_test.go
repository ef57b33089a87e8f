package proc

import (
	"testing"

	"github.com/nessmc/pfilter/dist"
	"github.com/nessmc/pfilter/param"
	"github.com/nessmc/pfilter/rnd"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

// ar1 builds a scalar AR(1) hidden process xₜ = phi·xₜ₋₁ + sigma·ε, x0 ~ N(0, 1).
func ar1(t *testing.T, phi, sigma float64) *BaseProcess {
	phiP := param.NewFixed("phi", phi)
	eps0, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	assert.NoError(t, err)
	eps, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{sigma * sigma}))
	assert.NoError(t, err)

	f0 := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return mat.NewDense(1, 1, []float64{0}) }
	g0 := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return mat.NewDense(1, 1, []float64{1}) }
	f := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		out.Scale(theta[0].Value(), x)
		return out
	}
	g := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		for c := 0; c < n; c++ {
			out.Set(0, c, 1)
		}
		return out
	}

	p, err := New(f0, f, g0, g, eps0, eps, phiP)
	assert.NoError(t, err)
	return p
}

func TestISampleAndPropagate(t *testing.T) {
	assert := assert.New(t)

	p := ar1(t, 0.9, 1.0)
	src := rnd.New(1)

	x0, err := p.ISample(src, 10)
	assert.NoError(err)
	rows, cols := x0.Dims()
	assert.Equal(1, rows)
	assert.Equal(10, cols)

	x1 := p.Propagate(src, x0)
	rows, cols = x1.Dims()
	assert.Equal(1, rows)
	assert.Equal(10, cols)
}

func TestObservableHasNoInitialDistribution(t *testing.T) {
	assert := assert.New(t)

	eps, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	assert.NoError(err)

	f := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return mat.DenseCopyOf(x) }
	g := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		for c := 0; c < n; c++ {
			out.Set(0, c, 1)
		}
		return out
	}

	obs := NewObservable(f, g, eps)
	_, err = obs.ISample(rnd.New(1), 5)
	assert.ErrorIs(err, ErrUninitializedAccess)
}

func TestWeightMatchesObservationDensity(t *testing.T) {
	assert := assert.New(t)

	eps, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	assert.NoError(err)

	f := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return mat.DenseCopyOf(x) }
	g := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		for c := 0; c < n; c++ {
			out.Set(0, c, 1)
		}
		return out
	}
	obs := NewObservable(f, g, eps)

	x := mat.NewDense(1, 3, []float64{0, 1, 2})
	y := mat.NewVecDense(1, []float64{0.5})

	w := obs.Weight(y, x)
	assert.Equal(3, w.Len())
	// y - x == innovation, fed straight to the Gaussian log-density
	expected := eps.LogPDF(mat.NewDense(1, 3, []float64{0.5, -0.5, -1.5}))
	for i := 0; i < 3; i++ {
		assert.InDelta(expected.AtVec(i), w.AtVec(i), 1e-9)
	}
}

func TestPPriorSumsOnlyTrainableParameters(t *testing.T) {
	assert := assert.New(t)

	prior, err := dist.NewNormalPrior(0, 1)
	assert.NoError(err)
	trainable, err := param.NewTrainable("mu", prior, 0.5)
	assert.NoError(err)
	fixed := param.NewFixed("c", 3.0)

	eps, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	assert.NoError(err)
	f := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return mat.DenseCopyOf(x) }
	g := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return mat.NewDense(1, 1, []float64{1}) }

	p := NewObservable(f, g, eps, trainable, fixed)
	assert.InDelta(prior.LogPDF(0.5), p.PPrior(), 1e-9)
}
