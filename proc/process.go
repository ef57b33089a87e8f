// Package proc implements the discretized Markov process abstraction
// spec.md's data model calls a Process: a quadruple (f0, g0, f, g) of
// deterministic functions, a tuple of trainable/fixed param.Parameters, and
// a pair of noise sources, composed into Xₜ = f(Xₜ₋₁; θ) + g(Xₜ₋₁; θ)·εₜ.
package proc

import (
	"fmt"
	"math"

	"github.com/nessmc/pfilter/dist"
	"github.com/nessmc/pfilter/param"
	"github.com/nessmc/pfilter/rnd"
	"gonum.org/v1/gonum/mat"
)

// MeanFunc computes f(x; θ) (or f0(θ) when x is nil) for a batch of
// particles stored as the columns of x, returning a matrix of the same
// shape.
type MeanFunc func(x *mat.Dense, theta []*param.Parameter) *mat.Dense

// ScaleFunc computes g(x; θ) (or g0(θ) when x is nil), returning a matrix of
// the same shape as x holding the per-dimension diagonal scale applied to
// each particle's noise draw. BaseProcess has no representation of full,
// non-diagonal process noise covariance.
type ScaleFunc func(x *mat.Dense, theta []*param.Parameter) *mat.Dense

// BaseProcess is one discretized Markov process: the initial and transition
// mean/scale functions, the process's own parameters, and its noise
// sources. ndim is fixed at construction from the noise dimensionality and
// never changes.
type BaseProcess struct {
	f0, f MeanFunc
	g0, g ScaleFunc
	theta []*param.Parameter
	eps0  dist.Noise // nil for an Observable, which has no initial step
	eps   dist.Noise
	ndim  int

	// linearGaussian marks a process whose mean function is linear in its
	// input state, allowing proposal.LinearGaussianOpt to attach to it.
	linearGaussian bool
}

// ErrUninitializedAccess is returned by ISample on a process with no
// initial distribution (proc.Observable).
var ErrUninitializedAccess = fmt.Errorf("process has no initial distribution")

// New creates a hidden BaseProcess: a full (f0, g0, f, g) quadruple with
// both an initial and a transition noise source. It fails if eps0 and eps
// disagree on dimensionality.
func New(f0, f MeanFunc, g0, g ScaleFunc, eps0, eps dist.Noise, theta ...*param.Parameter) (*BaseProcess, error) {
	if eps0.Dim() != eps.Dim() {
		return nil, fmt.Errorf("initial noise dim %d does not match transition noise dim %d", eps0.Dim(), eps.Dim())
	}
	return &BaseProcess{f0: f0, f: f, g0: g0, g: g, theta: theta, eps0: eps0, eps: eps, ndim: eps.Dim()}, nil
}

// NewObservable creates an Observable: a BaseProcess with no initial
// distribution, used for the observation process of a StateSpaceModel.
// Propagate on an Observable *is* the observe operation: yₜ = f(xₜ; θ) +
// g(xₜ; θ)·ηₜ given the hidden state xₜ, so ssm.StateSpaceModel.Sample
// drives it the same way it drives Hidden.
func NewObservable(f MeanFunc, g ScaleFunc, eps dist.Noise, theta ...*param.Parameter) *BaseProcess {
	return &BaseProcess{f: f, g: g, theta: theta, eps: eps, ndim: eps.Dim()}
}

// Dim returns the process's dimensionality, fixed at construction.
func (b *BaseProcess) Dim() int { return b.ndim }

// SetLinearGaussian marks whether b's mean function is linear in its input
// state. proposal.LinearGaussianOpt refuses to attach to a process for
// which this is false, returning ErrIncompatibleModel.
func (b *BaseProcess) SetLinearGaussian(v bool) { b.linearGaussian = v }

// LinearGaussian reports whether b was marked linear-Gaussian.
func (b *BaseProcess) LinearGaussian() bool { return b.linearGaussian }

// Mean computes f(x; θ) (or f0(θ) when x is nil) without drawing any noise,
// broadcast to n columns. Proposals that need the noise-free transition
// mean (proposal.Linearized, proposal.Unscented, proposal.LinearGaussianOpt)
// use this instead of Propagate.
func (b *BaseProcess) Mean(x *mat.Dense, n int) *mat.Dense {
	if x == nil {
		return broadcastCols(b.f0(nil, b.theta), n)
	}
	return b.f(x, b.theta)
}

// TransitionScale returns the effective per-particle transition standard
// deviation g(x; θ)·std(ε), i.e. the diagonal scale a Gaussian
// approximation of Propagate would use.
func (b *BaseProcess) TransitionScale(x *mat.Dense) *mat.Dense {
	_, n := x.Dims()
	scale := b.g(x, b.theta)
	return scaleByNoiseStd(scale, b.eps.Std(), n)
}

// InitialScale is TransitionScale's counterpart for the initial step,
// broadcast to n columns.
func (b *BaseProcess) InitialScale(n int) *mat.Dense {
	scale := broadcastCols(b.g0(nil, b.theta), n)
	return scaleByNoiseStd(scale, b.eps0.Std(), n)
}

func scaleByNoiseStd(scale *mat.Dense, std []float64, n int) *mat.Dense {
	rows, cols := scale.Dims()
	if cols != n {
		scale = broadcastCols(scale, n)
	}
	out := mat.NewDense(rows, n, nil)
	out.CloneFrom(scale)
	for r := 0; r < rows; r++ {
		for c := 0; c < n; c++ {
			out.Set(r, c, out.At(r, c)*std[r])
		}
	}
	return out
}

// Params returns b's own parameter tuple, in declaration order.
func (b *BaseProcess) Params() []*param.Parameter { return b.theta }

// ISample draws n initial particles x0 = f0(θ) + g0(θ)·ε0, ε0 ~ eps0,
// returned as the columns of a Dim() x n matrix. It fails with
// ErrUninitializedAccess if b has no initial distribution.
func (b *BaseProcess) ISample(src *rnd.Source, n int) (*mat.Dense, error) {
	if b.f0 == nil || b.eps0 == nil {
		return nil, ErrUninitializedAccess
	}
	mean := b.f0(nil, b.theta)
	mean = broadcastCols(mean, n)
	scale := broadcastCols(b.g0(nil, b.theta), n)
	eps := b.eps0.Sample(src, n)

	out := mat.NewDense(b.ndim, n, nil)
	out.MulElem(scale, eps)
	out.Add(out, mean)
	return out, nil
}

// Propagate advances particles x (Dim() x n) one step: x' = f(x; θ) +
// g(x; θ)·ε, ε ~ eps.
func (b *BaseProcess) Propagate(src *rnd.Source, x *mat.Dense) *mat.Dense {
	_, n := x.Dims()
	mean := b.f(x, b.theta)
	scale := b.g(x, b.theta)
	eps := b.eps.Sample(src, n)

	out := mat.NewDense(b.ndim, n, nil)
	out.MulElem(scale, eps)
	out.Add(out, mean)
	return out
}

// Weight evaluates log p(y | x) for a batch of particles x, given
// observation y (broadcast across all columns of x): the innovation
// (y - f(x; θ)) is rescaled by g(x; θ), handed to the noise log-density,
// and corrected by -log|g(x; θ)| per dimension.
func (b *BaseProcess) Weight(y mat.Vector, x *mat.Dense) *mat.VecDense {
	_, n := x.Dims()
	mean := b.f(x, b.theta)
	scale := b.g(x, b.theta)

	innov := mat.NewDense(b.ndim, n, nil)
	yb := broadcastCols(vecToCol(y), n)
	innov.Sub(yb, mean)
	innov.DivElem(innov, scale)

	logp := b.eps.LogPDF(innov)
	for c := 0; c < n; c++ {
		adj := logp.AtVec(c)
		for r := 0; r < b.ndim; r++ {
			adj -= math.Log(math.Abs(scale.At(r, c)))
		}
		logp.SetVec(c, adj)
	}
	return logp
}

// Sample generates a single forward trajectory of the given number of
// steps, returned as a Dim() x steps matrix.
func (b *BaseProcess) Sample(src *rnd.Source, steps int) (*mat.Dense, error) {
	x0, err := b.ISample(src, 1)
	if err != nil {
		return nil, err
	}

	traj := mat.NewDense(b.ndim, steps, nil)
	traj.SetCol(0, mat.Col(nil, 0, x0))

	cur := x0
	for t := 1; t < steps; t++ {
		cur = b.Propagate(src, cur)
		for r := 0; r < b.ndim; r++ {
			traj.Set(r, t, cur.At(r, 0))
		}
	}
	return traj, nil
}

// PApply applies fn to every trainable parameter's value. If transformed is
// true, fn is applied to (and its result installed as) the unconstrained
// value instead of the natural one.
func (b *BaseProcess) PApply(fn func(float64) float64, transformed bool) {
	for _, p := range b.theta {
		if !p.Trainable() {
			continue
		}
		if transformed {
			_ = p.SetTValue(fn(p.TValue()))
		} else {
			_ = p.SetValue(fn(p.Value()))
		}
	}
}

// PMap maps fn over every trainable parameter's natural value, returning the
// results in declaration order. Fixed parameters are skipped unless
// includeFixed is true.
func (b *BaseProcess) PMap(fn func(*param.Parameter) float64, includeFixed bool) []float64 {
	out := make([]float64, 0, len(b.theta))
	for _, p := range b.theta {
		if !p.Trainable() && !includeFixed {
			continue
		}
		out = append(out, fn(p))
	}
	return out
}

// PPrior returns Σ log π(θᵢ) summed over trainable parameters.
func (b *BaseProcess) PPrior() float64 {
	sum := 0.0
	for _, p := range b.theta {
		if p.Trainable() {
			sum += p.LogPrior(p.Value())
		}
	}
	return sum
}

// Clone returns an independent copy of b: its trainable/fixed parameters are
// deep-copied (param.Parameter.Clone) so jittering one copy's θ never
// touches the other's, while the stateless mean/scale functions and
// immutable noise sources are shared.
func (b *BaseProcess) Clone() *BaseProcess {
	cp := *b
	cp.theta = make([]*param.Parameter, len(b.theta))
	for i, p := range b.theta {
		cp.theta[i] = p.Clone()
	}
	return &cp
}

func broadcastCols(m *mat.Dense, n int) *mat.Dense {
	rows, cols := m.Dims()
	if cols == n {
		return m
	}
	if cols != 1 {
		panic(fmt.Sprintf("cannot broadcast %d columns to %d", cols, n))
	}
	col := mat.Col(nil, 0, m)
	out := mat.NewDense(rows, n, nil)
	for c := 0; c < n; c++ {
		out.SetCol(c, col)
	}
	return out
}

func vecToCol(v mat.Vector) *mat.Dense {
	out := mat.NewDense(v.Len(), 1, nil)
	for r := 0; r < v.Len(); r++ {
		out.Set(r, 0, v.AtVec(r))
	}
	return out
}
