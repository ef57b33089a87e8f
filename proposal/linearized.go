package proposal

import (
	"math"

	"github.com/nessmc/pfilter/rnd"
	"github.com/nessmc/pfilter/ssm"
	"gonum.org/v1/gonum/mat"
)

// Linearized proposes from a Gaussian built by first-order Taylor-expanding
// the observation mean about f(xPrev), per particle, then applying the same
// closed-form Gaussian update LinearGaussianOpt uses with the resulting
// local slope. Unlike LinearGaussianOpt it works for any (possibly
// nonlinear) 1-D observable.
type Linearized struct {
	Model *ssm.StateSpaceModel
}

func (l Linearized) posterior(y mat.Vector, xPrev *mat.Dense) (mean, std, transMean, transStd *mat.Dense) {
	_, n := xPrev.Dims()
	mu := l.Model.Hidden.Mean(xPrev, n)
	sigmaH := l.Model.Hidden.TransitionScale(xPrev)

	mean = mat.NewDense(1, n, nil)
	std = mat.NewDense(1, n, nil)
	yv := y.AtVec(0)

	for col := 0; col < n; col++ {
		at := mu.At(0, col)
		c, _ := linearProbe(func(x *mat.Dense, nn int) *mat.Dense { return l.Model.Observable.Mean(x, nn) }, at)

		probe := mat.NewDense(1, 1, []float64{at})
		sigmaO := l.Model.Observable.TransitionScale(probe).At(0, 0)

		vh := sigmaH.At(0, col) * sigmaH.At(0, col)
		vo := sigmaO * sigmaO
		postVar := 1 / (1/vh + c*c/vo)
		postMean := postVar * (at/vh + c*yv/vo)

		mean.Set(0, col, postMean)
		std.Set(0, col, math.Sqrt(math.Max(postVar, 0)))
	}
	return mean, std, mu, sigmaH
}

func (l Linearized) Rebind(model *ssm.StateSpaceModel) Proposal {
	l.Model = model
	return l
}

func (l Linearized) Draw(src *rnd.Source, y mat.Vector, xPrev *mat.Dense) *mat.Dense {
	mean, std, _, _ := l.posterior(y, xPrev)
	return sampleCol(src, mean, std)
}

func (l Linearized) Weight(y mat.Vector, xNew, xPrev *mat.Dense) *mat.VecDense {
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
