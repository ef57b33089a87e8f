// Package models provides ready-made StateSpaceModel constructors for the
// two scenarios spec.md's testable properties exercise: a linear-Gaussian
// AR(1) and a Taylor stochastic-volatility model. Grounded in
// original_source/pyfilter/timeseries/base.py (linear.AR1/ssm class hierarchy)
// and original_source/pyfilter/examples/taylor.py, expressed in the teacher's
// idiom of a model package exposing constructors that return a wired,
// ready-to-run model (model.NewDefaultModel, sim.NewModel).
package models

import (
	"math"

	"github.com/nessmc/pfilter/dist"
	"github.com/nessmc/pfilter/param"
	"github.com/nessmc/pfilter/proc"
	"github.com/nessmc/pfilter/ssm"
	"gonum.org/v1/gonum/mat"
)

func scalar(v float64) *mat.Dense { return mat.NewDense(1, 1, []float64{v}) }

// NewLinearGaussianAR1 builds xₜ = phi·xₜ₋₁ + sigmaH·ε, yₜ = xₜ + c + sigmaO·η,
// x0 ~ N(0, sigmaH²/(1-phi²)) (the AR(1) stationary variance) -- spec
// scenarios S2/S3/S5's model. phi, sigmaH, c and sigmaO are all built as
// fixed (non-trainable) parameters.
func NewLinearGaussianAR1(phi, sigmaH, c, sigmaO float64) (*ssm.StateSpaceModel, error) {
	phiP := param.NewFixed("phi", phi)
	sigmaHP := param.NewFixed("sigmaH", sigmaH)
	cP := param.NewFixed("c", c)
	sigmaOP := param.NewFixed("sigmaO", sigmaO)

	stationaryVar := sigmaH * sigmaH / (1 - phi*phi)
	hEps0, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{stationaryVar}))
	if err != nil {
		return nil, err
	}
	hEps, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	if err != nil {
		return nil, err
	}

	f0 := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return scalar(0) }
	g0 := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return scalar(1) }
	f := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		out.Scale(theta[0].Value(), x)
		return out
	}
	g := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		for col := 0; col < n; col++ {
			out.Set(0, col, theta[1].Value())
		}
		return out
	}
	hidden, err := proc.New(f0, f, g0, g, hEps0, hEps, phiP, sigmaHP)
	if err != nil {
		return nil, err
	}
	hidden.SetLinearGaussian(true)

	oEps, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	if err != nil {
		return nil, err
	}
	of := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		for col := 0; col < n; col++ {
			out.Set(0, col, x.At(0, col)+theta[0].Value())
		}
		return out
	}
	og := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		for col := 0; col < n; col++ {
			out.Set(0, col, theta[1].Value())
		}
		return out
	}
	observable := proc.NewObservable(of, og, oEps, cP, sigmaOP)
	observable.SetLinearGaussian(true)

	return ssm.New(hidden, observable), nil
}

// NewTaylorSV builds the Taylor stochastic-volatility model spec scenario
// S1 uses: x0=0, xₜ = alpha·xₜ₋₁ + sigma·ε, yₜ = 0.6·exp(xₜ/2)·η. The
// observation mean is identically zero (pure multiplicative volatility), so
// it is nonlinear in xₜ and must use proposal.Linearized or proposal.Unscented
// rather than LinearGaussianOpt.
func NewTaylorSV(alpha, sigma float64) (*ssm.StateSpaceModel, error) {
	alphaP := param.NewFixed("alpha", alpha)
	sigmaP := param.NewFixed("sigma", sigma)

	hEps0, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	if err != nil {
		return nil, err
	}
	hEps, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	if err != nil {
		return nil, err
	}

	f0 := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return scalar(0) }
	g0 := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense { return scalar(0) }
	f := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		out.Scale(theta[0].Value(), x)
		return out
	}
	g := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		for col := 0; col < n; col++ {
			out.Set(0, col, theta[1].Value())
		}
		return out
	}
	hidden, err := proc.New(f0, f, g0, g, hEps0, hEps, alphaP, sigmaP)
	if err != nil {
		return nil, err
	}

	oEps, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{1}))
	if err != nil {
		return nil, err
	}
	of := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		return out // zero mean; volatility is entirely in the scale term below
	}
	og := func(x *mat.Dense, theta []*param.Parameter) *mat.Dense {
		_, n := x.Dims()
		out := mat.NewDense(1, n, nil)
		for col := 0; col < n; col++ {
			out.Set(0, col, 0.6*math.Exp(x.At(0, col)/2))
		}
		return out
	}
	observable := proc.NewObservable(of, og, oEps)

	return ssm.New(hidden, observable), nil
}
