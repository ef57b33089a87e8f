package pfilter

import (
	"math"
	"testing"

	"github.com/nessmc/pfilter/dist"
	"github.com/nessmc/pfilter/param"
	"github.com/nessmc/pfilter/proc"
	"github.com/nessmc/pfilter/proposal"
	"github.com/nessmc/pfilter/resample"
	"github.com/nessmc/pfilter/rnd"
	"github.com/nessmc/pfilter/ssm"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func linearAR1(t *testing.T, phi, sigmaH, sigmaO float64) *ssm.StateSpaceModel {
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
	return ssm.New(hidden, observable)
}

func TestFilterRequiresInitialize(t *testing.T) {
	assert := assert.New(t)
	m := linearAR1(t, 0.9, 1.0, 1.0)
	pf, err := New(m, proposal.Bootstrap{Model: m}, resample.Systematic{}, 100, 0.5)
	assert.NoError(err)

	y := mat.NewVecDense(1, []float64{0})
	_, err = pf.Filter(rnd.New(1), y)
	assert.ErrorIs(err, ErrNotInitialized)
}

func TestInitializeSetsUniformWeights(t *testing.T) {
	assert := assert.New(t)
	m := linearAR1(t, 0.9, 1.0, 1.0)
	pf, err := New(m, proposal.Bootstrap{Model: m}, resample.Systematic{}, 50, 0.5)
	assert.NoError(err)

	assert.NoError(pf.Initialize(rnd.New(2)))
	assert.Equal(Initialized, pf.State())
	rows, cols := pf.X().Dims()
	assert.Equal(1, rows)
	assert.Equal(50, cols)
	for i := 0; i < 50; i++ {
		assert.Equal(0.0, pf.LogWeights().AtVec(i))
	}
	assert.InDelta(50.0, pf.ESS(), 1e-9)
}

func TestFilterRecordsHistoryAndAdvancesState(t *testing.T) {
	assert := assert.New(t)
	m := linearAR1(t, 0.9, 1.0, 1.0)
	pf, err := New(m, proposal.Bootstrap{Model: m}, resample.Systematic{}, 200, 0.5)
	assert.NoError(err)
	assert.NoError(pf.Initialize(rnd.New(3)))

	src := rnd.New(4)
	y := mat.NewVecDense(1, []float64{0.2})
	ll, err := pf.Filter(src, y)
	assert.NoError(err)
	assert.False(math.IsNaN(ll) || math.IsInf(ll, 0))
	assert.Equal(Running, pf.State())
	assert.Len(pf.SLL(), 1)
	assert.Len(pf.SMx(), 1)
	assert.Len(pf.SL(), 1)
	assert.Len(pf.SN(), 1)
}

func TestLongFilterMatchesStepwiseFilter(t *testing.T) {
	assert := assert.New(t)
	m := linearAR1(t, 0.9, 1.0, 1.0)

	pfA, err := New(m, proposal.Bootstrap{Model: m}, resample.Systematic{}, 64, 0.5)
	assert.NoError(err)
	assert.NoError(pfA.Initialize(rnd.New(5)))

	pfB, err := New(m, proposal.Bootstrap{Model: m}, resample.Systematic{}, 64, 0.5)
	assert.NoError(err)
	assert.NoError(pfB.Initialize(rnd.New(5)))

	y := mat.NewDense(1, 10, []float64{0.1, 0.2, -0.1, 0.3, 0, -0.2, 0.4, 0.1, -0.3, 0.05})

	srcA := rnd.New(6)
	expected := make([]float64, 10)
	for t := 0; t < 10; t++ {
		ll, err := pfA.Filter(srcA, y.ColView(t))
		assert.NoError(err)
		expected[t] = ll
	}

	srcB := rnd.New(6)
	got, err := pfB.LongFilter(srcB, y)
	assert.NoError(err)
	assert.Equal(expected, got)
}

func TestResampleRequiresMatchingIndexCount(t *testing.T) {
	assert := assert.New(t)
	m := linearAR1(t, 0.9, 1.0, 1.0)
	pf, err := New(m, proposal.Bootstrap{Model: m}, resample.Systematic{}, 10, 0.5)
	assert.NoError(err)
	assert.NoError(pf.Initialize(rnd.New(7)))

	err = pf.Resample([]int{0, 1, 2}, false)
	assert.Error(err)
}

func TestCopyIsIndependent(t *testing.T) {
	assert := assert.New(t)
	m := linearAR1(t, 0.9, 1.0, 1.0)
	pf, err := New(m, proposal.Bootstrap{Model: m}, resample.Systematic{}, 20, 0.5)
	assert.NoError(err)
	assert.NoError(pf.Initialize(rnd.New(8)))

	src := rnd.New(9)
	y := mat.NewVecDense(1, []float64{0.3})
	_, err = pf.Filter(src, y)
	assert.NoError(err)

	cp := pf.Copy()
	_, err = pf.Filter(src, y)
	assert.NoError(err)

	assert.Len(cp.SLL(), 1)
	assert.Len(pf.SLL(), 2)

	cp.Reset()
	assert.Empty(cp.SLL())
	assert.Len(pf.SLL(), 2)
}

func TestCopyDeepCopiesModelParameters(t *testing.T) {
	assert := assert.New(t)
	m := linearAR1(t, 0.9, 1.0, 1.0)
	pf, err := New(m, proposal.Bootstrap{Model: m}, resample.Systematic{}, 5, 0.5)
	assert.NoError(err)

	cp := pf.Copy()
	assert.NotSame(pf.Model(), cp.Model())

	before := cp.Model().Hidden.Params()[0].Value()
	assert.NoError(pf.Model().Hidden.Params()[0].SetValue(before + 1))
	assert.Equal(before, cp.Model().Hidden.Params()[0].Value())
}

func TestRougheningSpreadsResampledParticles(t *testing.T) {
	assert := assert.New(t)
	m := linearAR1(t, 0.0, 1e-9, 1.0) // near-zero process noise -> heavy resample collapse
	pf, err := New(m, proposal.Bootstrap{Model: m}, resample.Multinomial{}, 200, 1.0)
	assert.NoError(err)
	pf.SetRoughening(true, 0)
	assert.NoError(pf.Initialize(rnd.New(3)))

	src := rnd.New(4)
	y := mat.NewVecDense(1, []float64{0.1})
	_, err = pf.Filter(src, y)
	assert.NoError(err)

	distinct := map[float64]bool{}
	x := pf.X()
	_, cols := x.Dims()
	for c := 0; c < cols; c++ {
		distinct[x.At(0, c)] = true
	}
	assert.Greater(len(distinct), 1)
}
