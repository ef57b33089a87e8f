// Package algorithm implements SequentialAlgorithm, the thin outer-loop
// driver spec.md §4.9 describes: it wraps whichever InnerFilter a model
// uses (pfilter.ParticleFilter or kalman.KalmanLaplace/Linearized) and
// tracks the stream of incremental log-likelihoods and filtered means the
// way the teacher's sim.Sim drives a filter.Filter across a simulation run.
package algorithm

import (
	"context"
	"fmt"

	"github.com/nessmc/pfilter/rnd"
	"github.com/nessmc/pfilter/ssm"
	"gonum.org/v1/gonum/mat"
)

// InnerFilter is the contract spec.md §4.8 says Kalman/Laplace filters share
// with ParticleFilter: initialize, step on one observation, step on a whole
// stream, and report the model and current filtered mean. Clone gives the
// outer ness/smc2 algorithms an independent copy of a filter when they
// resample their parameter particles, without caring whether the concrete
// filter underneath is particle-based or closed-form; ResetFilter clears a
// filter's recorded history.
type InnerFilter interface {
	Initialize(src *rnd.Source) error
	Filter(src *rnd.Source, y mat.Vector) (float64, error)
	LongFilter(src *rnd.Source, y *mat.Dense) ([]float64, error)
	Model() *ssm.StateSpaceModel
	Mean() *mat.VecDense
	Clone() InnerFilter
	ResetFilter() InnerFilter
}

// ToVec coerces y into a *mat.VecDense, accepting either a []float64 or an
// existing mat.Vector, so callers can pass observations either way.
func ToVec(y interface{}) (*mat.VecDense, error) {
	switch v := y.(type) {
	case *mat.VecDense:
		return v, nil
	case mat.Vector:
		out := mat.NewVecDense(v.Len(), nil)
		out.CopyVec(v)
		return out, nil
	case []float64:
		return mat.NewVecDense(len(v), append([]float64(nil), v...)), nil
	default:
		return nil, fmt.Errorf("algorithm: cannot coerce %T to a vector observation", y)
	}
}

// SequentialAlgorithm drives an InnerFilter across a stream of observations,
// accumulating the incremental log-likelihood and filtered-mean history.
type SequentialAlgorithm struct {
	Inner InnerFilter
	lls   []float64
	means []*mat.VecDense
}

// New wraps inner in a SequentialAlgorithm.
func New(inner InnerFilter) *SequentialAlgorithm {
	return &SequentialAlgorithm{Inner: inner}
}

// Initialize delegates to the wrapped inner filter and clears history.
func (s *SequentialAlgorithm) Initialize(src *rnd.Source) error {
	s.lls = nil
	s.means = nil
	return s.Inner.Initialize(src)
}

// Filter advances the inner filter one step on observation y (a []float64
// or mat.Vector), recording the incremental log-ℓ and filtered mean.
func (s *SequentialAlgorithm) Filter(src *rnd.Source, y interface{}) (float64, error) {
	vec, err := ToVec(y)
	if err != nil {
		return 0, err
	}
	ll, err := s.Inner.Filter(src, vec)
	if err != nil {
		return 0, fmt.Errorf("algorithm: filter step: %w", err)
	}
	s.lls = append(s.lls, ll)
	s.means = append(s.means, s.Inner.Mean())
	return ll, nil
}

// Update is an alias for Filter, matching the spec's naming for the outer
// per-step entry point.
func (s *SequentialAlgorithm) Update(src *rnd.Source, y interface{}) (float64, error) {
	return s.Filter(src, y)
}

// LongFilter calls Filter once per column of y, checking ctx between steps
// so a caller can cancel a long stream (spec.md §5's context-cancellation
// requirement for blocking, multi-step operations).
func (s *SequentialAlgorithm) LongFilter(ctx context.Context, src *rnd.Source, y *mat.Dense) ([]float64, error) {
	_, steps := y.Dims()
	out := make([]float64, steps)
	for t := 0; t < steps; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ll, err := s.Filter(src, y.ColView(t))
		if err != nil {
			return nil, fmt.Errorf("algorithm: longfilter step %d: %w", t, err)
		}
		out[t] = ll
	}
	return out, nil
}

// FilterMeans returns a copy of the filtered-mean history accumulated so
// far, one vector per Filter call.
func (s *SequentialAlgorithm) FilterMeans() []*mat.VecDense {
	out := make([]*mat.VecDense, len(s.means))
	for i, m := range s.means {
		cp := mat.NewVecDense(m.Len(), nil)
		cp.CopyVec(m)
		out[i] = cp
	}
	return out
}

// LogLikelihoods returns a copy of the incremental log-ℓ history.
func (s *SequentialAlgorithm) LogLikelihoods() []float64 {
	return append([]float64(nil), s.lls...)
}

// Predict forecasts steps observations ahead of the current filtered mean,
// propagating the hidden process deterministically (no noise draw) and
// mapping each predicted hidden state through the observable's mean --
// a point forecast, not a sampled trajectory.
func (s *SequentialAlgorithm) Predict(steps int) (*mat.Dense, error) {
	model := s.Inner.Model()
	mean := s.Inner.Mean()
	if mean == nil {
		return nil, fmt.Errorf("algorithm: predict called before any Filter step")
	}

	d := mean.Len()
	x := mat.NewDense(d, 1, nil)
	for r := 0; r < d; r++ {
		x.Set(r, 0, mean.AtVec(r))
	}

	xOut := mat.NewDense(d, steps, nil)
	yOut := mat.NewDense(model.Observable.Dim(), steps, nil)
	for t := 0; t < steps; t++ {
		x = model.Hidden.Mean(x, 1)
		for r := 0; r < d; r++ {
			xOut.Set(r, t, x.At(r, 0))
		}
		y := model.Observable.Mean(x, 1)
		for r := 0; r < model.Observable.Dim(); r++ {
			yOut.Set(r, t, y.At(r, 0))
		}
	}
	return yOut, nil
}
