package proposal

import (
	"fmt"
	"math"

	"github.com/nessmc/pfilter/rnd"
	"github.com/nessmc/pfilter/ssm"
	"gonum.org/v1/gonum/mat"
)

// linearProbe probes a 1-D MeanFunc at two points around `at` to recover its
// slope and intercept. It is exact when the function really is affine (the
// case LinearGaussianOpt requires) and is the first-order Taylor expansion
// otherwise (the case Linearized uses).
func linearProbe(mean func(x *mat.Dense, n int) *mat.Dense, at float64) (slope, intercept float64) {
	const h = 1e-4
	x0 := mat.NewDense(1, 1, []float64{at - h})
	x1 := mat.NewDense(1, 1, []float64{at + h})
	y0 := mean(x0, 1).At(0, 0)
	y1 := mean(x1, 1).At(0, 0)
	slope = (y1 - y0) / (2 * h)
	intercept = y0 - slope*(at-h)
	return slope, intercept
}

// LinearGaussianOpt is the exact optimal proposal for a state-space model
// whose observation mean is linear in the hidden state: posterior variance
// = 1/(σh⁻² + c²σo⁻²), posterior mean = var·(σh⁻²·μ + c·σo⁻²·y), per
// spec.md §4.6. Both Hidden and Observable must be 1-D.
type LinearGaussianOpt struct {
	Model *ssm.StateSpaceModel
}

// NewLinearGaussianOpt attaches the optimal proposal to model. It fails
// with ErrIncompatibleModel if model.Observable was not marked linear via
// proc.BaseProcess.SetLinearGaussian, or if either process isn't 1-D.
func NewLinearGaussianOpt(model *ssm.StateSpaceModel) (*LinearGaussianOpt, error) {
	if !model.Observable.LinearGaussian() {
		return nil, fmt.Errorf("%w: observable is not marked linear-Gaussian", ErrIncompatibleModel)
	}
	if model.Hidden.Dim() != 1 || model.Observable.Dim() != 1 {
		return nil, fmt.Errorf("%w: LinearGaussianOpt only supports 1-D hidden/observable processes", ErrIncompatibleModel)
	}
	return &LinearGaussianOpt{Model: model}, nil
}

func (l *LinearGaussianOpt) Rebind(model *ssm.StateSpaceModel) Proposal {
	return &LinearGaussianOpt{Model: model}
}

// posterior computes, per particle, the optimal-proposal Gaussian mean/std,
// along with the hidden transition's own mean/std (needed by Weight).
func (l *LinearGaussianOpt) posterior(y mat.Vector, xPrev *mat.Dense) (mean, std, transMean, transStd *mat.Dense) {
	_, n := xPrev.Dims()
	mu := l.Model.Hidden.Mean(xPrev, n)
	sigmaH := l.Model.Hidden.TransitionScale(xPrev)
	sigmaO := l.Model.Observable.TransitionScale(mu)

	c, _ := linearProbe(func(x *mat.Dense, nn int) *mat.Dense { return l.Model.Observable.Mean(x, nn) }, mu.At(0, 0))

	mean = mat.NewDense(1, n, nil)
	std = mat.NewDense(1, n, nil)
	yv := y.AtVec(0)
	for col := 0; col < n; col++ {
		vh := sigmaH.At(0, col) * sigmaH.At(0, col)
		vo := sigmaO.At(0, col) * sigmaO.At(0, col)
		postVar := 1 / (1/vh + c*c/vo)
		postMean := postVar * (mu.At(0, col)/vh + c*yv/vo)
		mean.Set(0, col, postMean)
		std.Set(0, col, math.Sqrt(math.Max(postVar, 0)))
	}
	return mean, std, mu, sigmaH
}

func (l *LinearGaussianOpt) Draw(src *rnd.Source, y mat.Vector, xPrev *mat.Dense) *mat.Dense {
	mean, std, _, _ := l.posterior(y, xPrev)
	return sampleCol(src, mean, std)
}

func (l *LinearGaussianOpt) Weight(y mat.Vector, xNew, xPrev *mat.Dense) *mat.VecDense {
	_, n := xNew.Dims()
	mean, std, transMean, transStd := l.posterior(y, xPrev)
	logLik := l.Model.Observable.Weight(y, xNew)

	out := mat.NewVecDense(n, nil)
	for c := 0; c < n; c++ {
		logPrior := gaussianLogPDF(xNew.At(0, c), transMean.At(0, c), transStd.At(0, c))
		logProp := gaussianLogPDF(xNew.At(0, c), mean.At(0, c), std.At(0, c))
		out.SetVec(c, logLik.AtVec(c)+logPrior-logProp)
	}
	return out
}
