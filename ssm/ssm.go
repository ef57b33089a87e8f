// Package ssm implements the StateSpaceModel pair spec.md's data model
// describes: a hidden Markov process and an observation process, composed
// for joint simulation and exposing a single joint trainable parameter
// surface to the outer parameter-inference algorithms.
package ssm

import (
	"github.com/nessmc/pfilter/param"
	"github.com/nessmc/pfilter/proc"
	"github.com/nessmc/pfilter/rnd"
	"gonum.org/v1/gonum/mat"
)

// StateSpaceModel pairs a hidden process with an observable (observation)
// process.
type StateSpaceModel struct {
	Hidden     *proc.BaseProcess
	Observable *proc.BaseProcess
}

// New creates a StateSpaceModel from a hidden process and an observable.
func New(hidden, observable *proc.BaseProcess) *StateSpaceModel {
	return &StateSpaceModel{Hidden: hidden, Observable: observable}
}

// Params returns the joint trainable parameter list: hidden's trainable
// parameters first, then observable's, each in declaration order.
func (m *StateSpaceModel) Params() []*param.Parameter {
	out := make([]*param.Parameter, 0, len(m.Hidden.Params())+len(m.Observable.Params()))
	for _, p := range m.Hidden.Params() {
		if p.Trainable() {
			out = append(out, p)
		}
	}
	for _, p := range m.Observable.Params() {
		if p.Trainable() {
			out = append(out, p)
		}
	}
	return out
}

// PPrior returns the joint log-prior density Σ log π(θᵢ) over both
// processes' trainable parameters.
func (m *StateSpaceModel) PPrior() float64 {
	return m.Hidden.PPrior() + m.Observable.PPrior()
}

// Clone returns an independent copy of m: Hidden and Observable are each
// deep-copied via proc.BaseProcess.Clone, so the clone's parameters can be
// jittered/rejuvenated without mutating m's (or any other clone's).
func (m *StateSpaceModel) Clone() *StateSpaceModel {
	return &StateSpaceModel{
		Hidden:     m.Hidden.Clone(),
		Observable: m.Observable.Clone(),
	}
}

// Sample draws a single forward trajectory of the given number of steps,
// alternating Hidden.Propagate and Observable.Weight-compatible sampling:
// it returns the hidden states x (Hidden.Dim() x steps) and the
// observations y (Observable.Dim() x steps).
func (m *StateSpaceModel) Sample(src *rnd.Source, steps int) (x, y *mat.Dense, err error) {
	x0, err := m.Hidden.ISample(src, 1)
	if err != nil {
		return nil, nil, err
	}

	hd, od := m.Hidden.Dim(), m.Observable.Dim()
	x = mat.NewDense(hd, steps, nil)
	y = mat.NewDense(od, steps, nil)

	cur := x0
	for t := 0; t < steps; t++ {
		if t > 0 {
			cur = m.Hidden.Propagate(src, cur)
		}
		x.SetCol(t, mat.Col(nil, 0, cur))

		yt := m.Observable.Propagate(src, cur)
		y.SetCol(t, mat.Col(nil, 0, yt))
	}

	return x, y, nil
}
