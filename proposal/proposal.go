// Package proposal implements the draw/weight strategies spec.md §4.6
// describes for advancing a pfilter.ParticleFilter one step: bootstrap,
// linearized, unscented, and the linear-Gaussian-optimal proposal.
package proposal

import (
	"fmt"
	"math"

	"github.com/nessmc/pfilter/rnd"
	"github.com/nessmc/pfilter/ssm"
	"gonum.org/v1/gonum/mat"
)

// ErrIncompatibleModel is returned when a proposal is attached to a model it
// cannot handle, e.g. LinearGaussianOpt on a nonlinear observable.
var ErrIncompatibleModel = fmt.Errorf("proposal incompatible with model")

// Proposal draws the next-state particle given (y, xPrev) and provides the
// incremental log-weight for the draw.
type Proposal interface {
	Draw(src *rnd.Source, y mat.Vector, xPrev *mat.Dense) *mat.Dense
	Weight(y mat.Vector, xNew, xPrev *mat.Dense) *mat.VecDense

	// Rebind returns a copy of this proposal attached to model instead of
	// whatever model it was built with. pfilter.ParticleFilter.Copy uses
	// this to keep a cloned filter's proposal and its deep-copied model in
	// sync -- without it, the clone's proposal would still draw/weight
	// against the original's (and therefore the original's) parameters.
	Rebind(model *ssm.StateSpaceModel) Proposal
}

func gaussianLogPDF(x, mean, std float64) float64 {
	z := (x - mean) / std
	return -0.5*z*z - math.Log(std) - 0.5*math.Log(2*math.Pi)
}

func sampleCol(src *rnd.Source, mean, std *mat.Dense) *mat.Dense {
	rows, cols := mean.Dims()
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Set(r, c, mean.At(r, c)+std.At(r, c)*src.NormFloat64())
		}
	}
	return out
}

// Bootstrap draws the next-state particle straight from the hidden
// transition and weights it by the observation log-density -- the simplest
// proposal, and the one whose incremental weight must equal
// observable.Weight(y, xNew) exactly (spec.md's universal testable
// property 2).
type Bootstrap struct {
	Model *ssm.StateSpaceModel
}

func (b Bootstrap) Draw(src *rnd.Source, y mat.Vector, xPrev *mat.Dense) *mat.Dense {
	return b.Model.Hidden.Propagate(src, xPrev)
}

func (b Bootstrap) Weight(y mat.Vector, xNew, xPrev *mat.Dense) *mat.VecDense {
	return b.Model.Observable.Weight(y, xNew)
}

func (b Bootstrap) Rebind(model *ssm.StateSpaceModel) Proposal {
	b.Model = model
	return b
}
