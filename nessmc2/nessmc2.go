// Package nessmc2 implements the NESSMC² hybrid outer algorithm spec.md
// §4.12 describes: an SMC² warm-up phase (cheap parameter exploration via
// PMMH rejuvenation while few observations have arrived) that hands off,
// after a single outer resample, to a NESS phase reusing the same inner
// filters for the rest of the stream. Grounded in
// original_source/pyfilter/hybrid.py and structured, in Go, the way the
// teacher's sim.Sim owns a single filter.Filter for the life of a run --
// here NESSMC2 is the single owner of the inner-filter ensemble across the
// phase transition.
package nessmc2

import (
	"fmt"

	"github.com/nessmc/pfilter/algorithm"
	"github.com/nessmc/pfilter/ness"
	"github.com/nessmc/pfilter/resample"
	"github.com/nessmc/pfilter/rnd"
	"github.com/nessmc/pfilter/smc2"
	"gonum.org/v1/gonum/mat"
)

// ErrNotInitialized is returned by Update before Initialize has been called.
var ErrNotInitialized = fmt.Errorf("nessmc2: not initialized")

// NESSMC2 runs smc2.SMC2 until the accumulated observation count reaches
// Handshake*That, then switches permanently to ness.NESS over the same
// inner-filter ensemble.
type NESSMC2 struct {
	handshake float64
	that      int
	obsCount  int

	nessThreshold float64
	kernel        ness.JitterKernel

	phase1 *smc2.SMC2
	phase2 *ness.NESS
}

// New builds a NESSMC2 algorithm. m and n are SMC2's outer/inner particle
// counts and smc2Threshold its rejuvenation-ESS threshold; nessThreshold and
// kernel configure the NESS phase it hands off to; handshake and that set
// the switchover point (observationCount >= handshake*that). newFilter
// constructs a fresh InnerFilter, used only during the SMC2 phase.
func New(m, n int, smc2Threshold, nessThreshold float64, kernel ness.JitterKernel, handshake float64, that int, newFilter func(k int) algorithm.InnerFilter) (*NESSMC2, error) {
	phase1, err := smc2.New(m, n, smc2Threshold, newFilter)
	if err != nil {
		return nil, err
	}
	return &NESSMC2{
		handshake:     handshake,
		that:          that,
		nessThreshold: nessThreshold,
		kernel:        kernel,
		phase1:        phase1,
	}, nil
}

// Initialize starts the SMC2 warm-up phase.
func (h *NESSMC2) Initialize(src *rnd.Source) error {
	h.obsCount = 0
	h.phase2 = nil
	return h.phase1.Initialize(src)
}

// Update advances whichever phase is currently active, performing the
// handshake transition the first time the observation count crosses
// Handshake*That.
func (h *NESSMC2) Update(src *rnd.Source, y mat.Vector) error {
	if h.phase2 != nil {
		return h.phase2.Update(src, y)
	}
	if h.phase1.Particles() == nil {
		return ErrNotInitialized
	}

	if err := h.phase1.Update(src, y); err != nil {
		return fmt.Errorf("nessmc2: smc2 phase: %w", err)
	}
	h.obsCount++

	if float64(h.obsCount) >= h.handshake*float64(h.that) {
		h.handoff(src)
	}
	return nil
}

// handoff performs the single outer resample spec.md §4.12 requires, then
// builds the NESS phase directly on top of the resampled inner filters
// (preserving their history, since resampling clones rather than resets
// each filter) and releases the SMC2 phase.
func (h *NESSMC2) handoff(src *rnd.Source) {
	particles := h.phase1.Particles()
	logW := h.phase1.LogWeights()
	m := len(particles)

	logWRow := mat.NewDense(1, m, logW)
	idxRow := resample.Multinomial{}.Draw(src, logWRow)

	next := make([]algorithm.InnerFilter, m)
	for i := 0; i < m; i++ {
		anc := int(idxRow.At(0, i))
		next[i] = particles[anc].Clone()
	}

	h.phase2 = ness.NewFromParticles(h.nessThreshold, h.kernel, next)
	h.phase1 = nil
}

// LongFilter calls Update once per column of y.
func (h *NESSMC2) LongFilter(src *rnd.Source, y *mat.Dense) error {
	_, steps := y.Dims()
	for t := 0; t < steps; t++ {
		if err := h.Update(src, y.ColView(t)); err != nil {
			return fmt.Errorf("nessmc2: longfilter step %d: %w", t, err)
		}
	}
	return nil
}

// InNESSPhase reports whether the handshake has already happened.
func (h *NESSMC2) InNESSPhase() bool { return h.phase2 != nil }

// Particles returns the current outer particle ensemble, from whichever
// phase is active.
func (h *NESSMC2) Particles() []algorithm.InnerFilter {
	if h.phase2 != nil {
		return h.phase2.Particles()
	}
	return h.phase1.Particles()
}

// ParamMeans returns the weight-normalized posterior mean of every
// trainable parameter, from whichever phase is active.
func (h *NESSMC2) ParamMeans() []float64 {
	if h.phase2 != nil {
		return h.phase2.ParamMeans()
	}
	return h.phase1.ParamMeans()
}

// ESS returns the current outer effective sample size, from whichever phase
// is active.
func (h *NESSMC2) ESS() float64 {
	if h.phase2 != nil {
		return h.phase2.ESS()
	}
	return h.phase1.ESS()
}
