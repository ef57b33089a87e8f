package proposal

import (
	"math"

	"github.com/nessmc/pfilter/rnd"
	"github.com/nessmc/pfilter/ssm"
	"gonum.org/v1/gonum/mat"
)

// UnscentedConfig holds the unitless UKF sigma-point parameters, ported
// directly from the teacher's kalman/ukf.Config.
type UnscentedConfig struct {
	Alpha float64 // in (0, 1]
	Beta  float64 // 2 is optimal for a Gaussian
	Kappa float64 // >= 0
}

// DefaultUnscentedConfig returns the conventional choice (alpha=1e-3,
// beta=2, kappa=0) used throughout the UKF literature.
func DefaultUnscentedConfig() UnscentedConfig {
	return UnscentedConfig{Alpha: 1e-3, Beta: 2, Kappa: 0}
}

// sigmaPoints holds 2d+1 sigma points (as matrix columns) and their
// mean/covariance weights, built from the teacher's UKF formulas.
type sigmaPoints struct {
	x        *mat.Dense // d x (2d+1)
	wm0, wc0 float64
	w        float64
}

func newSigmaPoints(mean *mat.VecDense, cov mat.Symmetric, cfg UnscentedConfig) *sigmaPoints {
	d := mean.Len()
	lambda := cfg.Alpha*cfg.Alpha*(float64(d)+cfg.Kappa) - float64(d)
	gamma := math.Sqrt(float64(d) + lambda)

	var chol mat.Cholesky
	ok := chol.Factorize(cov)
	var sqrtCov mat.Dense
	if ok {
		var l mat.TriDense
		chol.LTo(&l)
		sqrtCov.CloneFrom(&l)
	} else {
		// fall back to a diagonal sqrt if cov is not (numerically)
		// positive definite -- keeps sigma-point construction total.
		sqrtCov = *mat.NewDense(d, d, nil)
		for i := 0; i < d; i++ {
			sqrtCov.Set(i, i, math.Sqrt(math.Max(cov.At(i, i), 0)))
		}
	}

	x := mat.NewDense(d, 2*d+1, nil)
	for r := 0; r < d; r++ {
		x.Set(r, 0, mean.AtVec(r))
	}
	for i := 0; i < d; i++ {
		col := mat.Col(nil, i, &sqrtCov)
		for r := 0; r < d; r++ {
			x.Set(r, i+1, mean.AtVec(r)+gamma*col[r])
			x.Set(r, d+i+1, mean.AtVec(r)-gamma*col[r])
		}
	}

	wm0 := lambda / (float64(d) + lambda)
	wc0 := wm0 + (1 - cfg.Alpha*cfg.Alpha + cfg.Beta)
	w := 1 / (2 * (float64(d) + lambda))

	return &sigmaPoints{x: x, wm0: wm0, wc0: wc0, w: w}
}

func (sp *sigmaPoints) weightedMeanCov(y *mat.Dense) (*mat.VecDense, *mat.SymDense) {
	d, m := y.Dims()
	mean := mat.NewVecDense(d, nil)
	for c := 0; c < m; c++ {
		w := sp.w
		if c == 0 {
			w = sp.wm0
		}
		for r := 0; r < d; r++ {
			mean.SetVec(r, mean.AtVec(r)+w*y.At(r, c))
		}
	}

	cov := mat.NewDense(d, d, nil)
	diff := mat.NewVecDense(d, nil)
	for c := 0; c < m; c++ {
		w := sp.w
		if c == 0 {
			w = sp.wc0
		}
		for r := 0; r < d; r++ {
			diff.SetVec(r, y.At(r, c)-mean.AtVec(r))
		}
		outer := mat.NewDense(d, d, nil)
		outer.Outer(w, diff, diff)
		cov.Add(cov, outer)
	}

	sym := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			sym.SetSym(i, j, cov.At(i, j))
		}
	}
	return mean, sym
}

// UnscentedMode selects how Unscented builds the sigma-point mean/covariance
// it starts from.
type UnscentedMode int

const (
	// Local builds sigma points around each particle individually, using
	// the process's own transition-noise covariance as spread -- a
	// per-particle unscented linearization.
	Local UnscentedMode = iota
	// Global builds a single set of sigma points from the unweighted mean
	// and variance of the particles' transition means plus the transition
	// noise variance, sharing one proposal across all particles.
	Global
)

// Unscented proposes via sigma-point propagation through the hidden
// transition and then the observation mean, per spec.md §4.6.
type Unscented struct {
	Model *ssm.StateSpaceModel
	Cfg   UnscentedConfig
	Mode  UnscentedMode
}

// NewUnscented creates an Unscented proposal for 1-D hidden/observable
// processes with DefaultUnscentedConfig and Local mode.
func NewUnscented(model *ssm.StateSpaceModel) *Unscented {
	return &Unscented{Model: model, Cfg: DefaultUnscentedConfig(), Mode: Local}
}

func (u *Unscented) Rebind(model *ssm.StateSpaceModel) Proposal {
	return &Unscented{Model: model, Cfg: u.Cfg, Mode: u.Mode}
}

func (u *Unscented) posteriorAt(mean float64, varH float64, y mat.Vector) (postMean, postStd float64) {
	m := mat.NewVecDense(1, []float64{mean})
	cov := mat.NewSymDense(1, []float64{varH})
	sp := newSigmaPoints(m, cov, u.Cfg)

	// propagate sigma points through the observation mean
	ySig := mat.NewDense(1, sp.x.RawMatrix().Cols, nil)
	for c := 0; c < ySig.RawMatrix().Cols; c++ {
		col := mat.NewDense(1, 1, []float64{sp.x.At(0, c)})
		ySig.Set(0, c, u.Model.Observable.Mean(col, 1).At(0, 0))
	}
	yMean, yCov := sp.weightedMeanCov(ySig)

	// cross-covariance between state sigma points and observed sigma points
	pxy := 0.0
	for c := 0; c < sp.x.RawMatrix().Cols; c++ {
		w := sp.w
		if c == 0 {
			w = sp.wc0
		}
		pxy += w * (sp.x.At(0, c) - mean) * (ySig.At(0, c) - yMean.AtVec(0))
	}

	probe := mat.NewDense(1, 1, []float64{mean})
	obsVar := u.Model.Observable.TransitionScale(probe).At(0, 0)
	obsVar *= obsVar
	pyy := yCov.At(0, 0) + obsVar

	gain := pxy / pyy
	postMean = mean + gain*(y.AtVec(0)-yMean.AtVec(0))
	postVar := varH - gain*pyy*gain
	return postMean, math.Sqrt(math.Max(postVar, 1e-12))
}

func (u *Unscented) posterior(y mat.Vector, xPrev *mat.Dense) (mean, std, transMean, transStd *mat.Dense) {
	_, n := xPrev.Dims()
	mu := u.Model.Hidden.Mean(xPrev, n)
	sigmaH := u.Model.Hidden.TransitionScale(xPrev)

	mean = mat.NewDense(1, n, nil)
	std = mat.NewDense(1, n, nil)

	if u.Mode == Global {
		globalMean := 0.0
		for c := 0; c < n; c++ {
			globalMean += mu.At(0, c)
		}
		globalMean /= float64(n)
		globalVar := 0.0
		for c := 0; c < n; c++ {
			d := mu.At(0, c) - globalMean
			globalVar += d * d
		}
		globalVar /= float64(n)
		sh := sigmaH.At(0, 0)
		globalVar += sh * sh

		pm, ps := u.posteriorAt(globalMean, globalVar, y)
		for c := 0; c < n; c++ {
			mean.Set(0, c, pm)
			std.Set(0, c, ps)
		}
		return mean, std, mu, sigmaH
	}

	for c := 0; c < n; c++ {
		sh := sigmaH.At(0, c)
		pm, ps := u.posteriorAt(mu.At(0, c), sh*sh, y)
		mean.Set(0, c, pm)
		std.Set(0, c, ps)
	}
	return mean, std, mu, sigmaH
}

func (u *Unscented) Draw(src *rnd.Source, y mat.Vector, xPrev *mat.Dense) *mat.Dense {
	mean, std, _, _ := u.posterior(y, xPrev)
	return sampleCol(src, mean, std)
}

func (u *Unscented) Weight(y mat.Vector, xNew, xPrev *mat.Dense) *mat.VecDense {
	_, n := xNew.Dims()
	mean, std, transMean, transStd := u.posterior(y, xPrev)
	logLik := u.Model.Observable.Weight(y, xNew)

	out := mat.NewVecDense(n, nil)
	for c := 0; c < n; c++ {
		logPrior := gaussianLogPDF(xNew.At(0, c), transMean.At(0, c), transStd.At(0, c))
		logProp := gaussianLogPDF(xNew.At(0, c), mean.At(0, c), std.At(0, c))
		out.SetVec(c, logLik.AtVec(c)+logPrior-logProp)
	}
	return out
}
