// Package param implements the Parameter abstraction spec.md's data model
// describes: a value that is either fixed, or trainable and governed by a
// dist.Prior, carrying both its natural (constrained) value and its
// transformed (unconstrained) value.
package param

import (
	"fmt"

	"github.com/nessmc/pfilter/dist"
	"github.com/nessmc/pfilter/rnd"
)

// Parameter is a scalar value participating in a proc.BaseProcess. If it has
// a prior it is trainable: the outer parameter-inference algorithms (ness,
// smc2) jitter/rejuvenate it in unconstrained space. If it has no prior it
// is fixed and never touched by those algorithms.
//
// Both the constrained and unconstrained representations are cached and
// invalidated on whichever setter is called, so the NESS jitter kernel
// (which operates in unconstrained space) never pays for a redundant
// transform on every access.
type Parameter struct {
	name  string
	prior dist.Prior // nil for a fixed parameter

	value   float64
	tValue  float64
	hasT    bool // tValue is valid
	hasV    bool // value is valid
}

// NewFixed creates a fixed (non-trainable) parameter with value v.
func NewFixed(name string, v float64) *Parameter {
	return &Parameter{name: name, value: v, hasV: true}
}

// NewTrainable creates a trainable parameter governed by prior, initialized
// to initial. It fails eagerly if initial is outside prior's bounds.
func NewTrainable(name string, prior dist.Prior, initial float64) (*Parameter, error) {
	p := &Parameter{name: name, prior: prior}
	if err := p.SetValue(initial); err != nil {
		return nil, err
	}
	return p, nil
}

// Name returns the parameter's name, used for diagnostics only.
func (p *Parameter) Name() string { return p.name }

// Trainable reports whether p has a prior and therefore participates in
// jittering/rejuvenation.
func (p *Parameter) Trainable() bool { return p.prior != nil }

// Prior returns p's prior, or nil if p is fixed.
func (p *Parameter) Prior() dist.Prior { return p.prior }

// Value returns the natural (constrained) value.
func (p *Parameter) Value() float64 {
	if !p.hasV {
		low, high := p.prior.Bounds()
		p.value = clampBoundaryInward(p.prior.Transform().FromUnconstrained(p.tValue), low, high)
		p.hasV = true
	}
	return p.value
}

// TValue returns the transformed (unconstrained) value.
func (p *Parameter) TValue() float64 {
	if !p.hasT {
		if p.prior == nil {
			return p.value
		}
		p.tValue = p.prior.Transform().ToUnconstrained(p.value)
		p.hasT = true
	}
	return p.tValue
}

// SetValue sets the natural value. It fails with dist.ErrInvalidSupport if
// the parameter is trainable and v lies outside the prior's bounds.
func (p *Parameter) SetValue(v float64) error {
	if p.prior != nil {
		low, high := p.prior.Bounds()
		if v < low || v > high {
			return fmt.Errorf("parameter %q: %w: %f not in [%f, %f]", p.name, dist.ErrInvalidSupport, v, low, high)
		}
	}
	p.value, p.hasV = v, true
	p.hasT = false
	return nil
}

// SetTValue sets the unconstrained value; the constrained value is derived
// lazily from it via the prior's Transform. Only valid for trainable
// parameters.
func (p *Parameter) SetTValue(u float64) error {
	if p.prior == nil {
		return fmt.Errorf("parameter %q: cannot set unconstrained value on a fixed parameter", p.name)
	}
	p.tValue, p.hasT = u, true
	p.hasV = false
	return nil
}

// LogPrior returns log π(x) for a trainable parameter, and 0 for a fixed
// one (a fixed parameter contributes no density to the joint prior).
func (p *Parameter) LogPrior(x float64) float64 {
	if p.prior == nil {
		return 0
	}
	return p.prior.LogPDF(x)
}

// Initialize draws a fresh natural value for p from its prior. It is a
// no-op for fixed parameters.
func (p *Parameter) Initialize(src *rnd.Source) {
	if p.prior == nil {
		return
	}
	p.value, p.hasV = p.prior.Sample(src), true
	p.hasT = false
}

// Clone returns an independent copy of p: mutating the clone's value (e.g.
// via SetTValue during jittering) never affects p, and vice versa. This is
// what lets NESS/SMC² duplicate a particle's parameter into several outer
// slots without those slots aliasing one underlying value.
func (p *Parameter) Clone() *Parameter {
	cp := *p
	return &cp
}

func clampBoundaryInward(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
