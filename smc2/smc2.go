// Package smc2 implements Chopin, Jacob & Papaspiliopoulos' SMC², an outer
// ensemble of M parameter particles rejuvenated via PMMH moves whenever
// outer ESS collapses, with automatic inner particle-count doubling when
// the acceptance rate is too low. Grounded in
// original_source/pyfilter/smc2.py and structured the way the teacher's
// particle/bf.BF owns and steps its own inner state -- smc2 owns a slice of
// independent algorithm.InnerFilter instances instead of a single
// 3-D-tensor ensemble.
package smc2

import (
	"fmt"
	"math"

	"github.com/nessmc/pfilter/algorithm"
	"github.com/nessmc/pfilter/matrix"
	"github.com/nessmc/pfilter/resample"
	"github.com/nessmc/pfilter/rnd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// ErrNotInitialized is returned by Update before Initialize has been called.
var ErrNotInitialized = fmt.Errorf("smc2: not initialized")

// SMC2 is the outer PMMH-rejuvenated parameter-inference algorithm.
type SMC2 struct {
	m         int
	threshold float64
	newFilter func(n int) algorithm.InnerFilter

	nCurrent  int
	particles []algorithm.InnerFilter
	logW      []float64
	buffer    *mat.Dense // accumulated observations, Dim(obs) x steps-so-far

	// LastAcceptRate is the acceptance fraction of the most recent
	// rejuvenation, or -1 if none has happened yet.
	LastAcceptRate float64
	// Doublings counts how many times the inner particle count has been
	// doubled so far.
	Doublings int
}

// New builds an SMC2 outer algorithm with m outer particles, initial inner
// particle count n, rejuvenating when ESS falls below threshold*m (default
// 0.2 per spec.md §4.11). newFilter(k) must construct a fresh InnerFilter
// with k inner state particles (for a closed-form InnerFilter such as
// kalman.KalmanLaplace, k is simply ignored).
func New(m, n int, threshold float64, newFilter func(k int) algorithm.InnerFilter) (*SMC2, error) {
	if m <= 0 || n <= 0 {
		return nil, fmt.Errorf("smc2: invalid particle counts m=%d n=%d", m, n)
	}
	return &SMC2{m: m, nCurrent: n, threshold: threshold, newFilter: newFilter, LastAcceptRate: -1}, nil
}

// Initialize constructs m fresh inner filters (each with nCurrent inner
// particles), draws each filter's trainable parameters from their priors,
// and resets the observation buffer and outer log-weights.
func (s *SMC2) Initialize(src *rnd.Source) error {
	s.particles = make([]algorithm.InnerFilter, s.m)
	s.logW = make([]float64, s.m)
	s.buffer = nil
	for i := range s.particles {
		f := s.newFilter(s.nCurrent)
		for _, p := range f.Model().Params() {
			p.Initialize(src)
		}
		if err := f.Initialize(src); err != nil {
			return fmt.Errorf("smc2: initialize particle %d: %w", i, err)
		}
		s.particles[i] = f
	}
	return nil
}

func appendObs(buffer *mat.Dense, y mat.Vector) *mat.Dense {
	d := y.Len()
	cols := 0
	if buffer != nil {
		_, cols = buffer.Dims()
	}
	out := mat.NewDense(d, cols+1, nil)
	if buffer != nil {
		out.Slice(0, d, 0, cols).(*mat.Dense).Copy(buffer)
	}
	for r := 0; r < d; r++ {
		out.Set(r, cols, y.AtVec(r))
	}
	return out
}

func paramTValues(f algorithm.InnerFilter) []float64 {
	ps := f.Model().Params()
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = p.TValue()
	}
	return out
}

func setParamTValues(f algorithm.InnerFilter, theta []float64) error {
	ps := f.Model().Params()
	for i, p := range ps {
		if err := p.SetTValue(theta[i]); err != nil {
			return err
		}
	}
	return nil
}

// Update performs one SMC2 step per spec.md §4.11: append to the
// observation buffer, advance every inner filter, update outer weights,
// and rejuvenate if ESS collapses.
func (s *SMC2) Update(src *rnd.Source, y mat.Vector) error {
	if s.particles == nil {
		return ErrNotInitialized
	}

	s.buffer = appendObs(s.buffer, y)

	for i, f := range s.particles {
		ll, err := f.Filter(src, y)
		if err != nil {
			return fmt.Errorf("smc2: filter particle %d: %w", i, err)
		}
		s.logW[i] += ll
	}

	if resample.ESSFromLogW(s.logW) < s.threshold*float64(s.m) {
		if err := s.rejuvenate(src); err != nil {
			return fmt.Errorf("smc2: rejuvenate: %w", err)
		}
	}
	return nil
}

func (s *SMC2) rejuvenate(src *rnd.Source) error {
	nParams := len(s.particles[0].Model().Params())
	if nParams == 0 {
		// nothing to rejuvenate; just reset weights.
		for i := range s.logW {
			s.logW[i] = 0
		}
		s.LastAcceptRate = 1
		return nil
	}

	w := resample.NormalizeLogW(s.logW)
	theta := mat.NewDense(nParams, s.m, nil)
	for i, f := range s.particles {
		for k, v := range paramTValues(f) {
			theta.Set(k, i, v)
		}
	}
	mean, cov, err := matrix.WeightedMeanCov(theta, w)
	if err != nil {
		return fmt.Errorf("failed to build proposal covariance: %w", err)
	}

	proposal, ok := distmv.NewNormal(mean.RawVector().Data, cov, src.Rand())
	if !ok {
		return fmt.Errorf("proposal covariance is not positive definite")
	}

	// resample outer particles (and their inner filter history) using the
	// current log-weights.
	logWRow := mat.NewDense(1, s.m, append([]float64(nil), s.logW...))
	idxRow := resample.Multinomial{}.Draw(src, logWRow)
	resampled := make([]algorithm.InnerFilter, s.m)
	resampledLL := make([]float64, s.m)
	for i := 0; i < s.m; i++ {
		anc := int(idxRow.At(0, i))
		resampled[i] = s.particles[anc].Clone()
		resampledLL[i] = s.logW[anc]
	}

	accepted := 0
	next := make([]algorithm.InnerFilter, s.m)
	for i := 0; i < s.m; i++ {
		current := resampled[i]
		thetaCur := paramTValues(current)
		priorCur := current.Model().PPrior()
		llCur := resampledLL[i]

		thetaProp := proposal.Rand(nil)

		candidate := s.newFilter(s.nCurrent)
		if err := setParamTValues(candidate, thetaProp); err != nil {
			return err
		}
		if err := candidate.Initialize(src); err != nil {
			return err
		}
		llsTilde, err := candidate.LongFilter(src, s.buffer)
		if err != nil {
			return err
		}
		llTilde := floats.Sum(llsTilde)
		priorTilde := candidate.Model().PPrior()

		k := proposal.LogProb(thetaCur) - proposal.LogProb(thetaProp)
		logAccept := math.Min(0, llTilde-llCur+priorTilde-priorCur+k)

		if math.Log(src.Float64()) < logAccept {
			next[i] = candidate
			s.logW[i] = llTilde
			accepted++
		} else {
			next[i] = current
			s.logW[i] = llCur
		}
	}
	s.particles = next

	for i := range s.logW {
		s.logW[i] = 0
	}
	s.LastAcceptRate = float64(accepted) / float64(s.m)

	if s.LastAcceptRate < 0.2 {
		return s.double(src)
	}
	return nil
}

func (s *SMC2) double(src *rnd.Source) error {
	newN := 2 * s.nCurrent
	next := make([]algorithm.InnerFilter, s.m)
	for i, f := range s.particles {
		theta := paramTValues(f)
		g := s.newFilter(newN)
		if err := setParamTValues(g, theta); err != nil {
			return err
		}
		if err := g.Initialize(src); err != nil {
			return err
		}
		lls, err := g.LongFilter(src, s.buffer)
		if err != nil {
			return err
		}
		s.logW[i] = floats.Sum(lls)
		next[i] = g
	}
	s.particles = next
	s.nCurrent = newN
	s.Doublings++
	for i := range s.logW {
		s.logW[i] = 0
	}
	return nil
}

// LongFilter calls Update once per column of y.
func (s *SMC2) LongFilter(src *rnd.Source, y *mat.Dense) error {
	_, steps := y.Dims()
	for t := 0; t < steps; t++ {
		if err := s.Update(src, y.ColView(t)); err != nil {
			return fmt.Errorf("smc2: longfilter step %d: %w", t, err)
		}
	}
	return nil
}

// ParamMeans returns the weight-normalized posterior mean (natural space)
// of every trainable parameter.
func (s *SMC2) ParamMeans() []float64 {
	w := resample.NormalizeLogW(s.logW)
	nParams := len(s.particles[0].Model().Params())
	means := make([]float64, nParams)
	for k := 0; k < nParams; k++ {
		for i, f := range s.particles {
			means[k] += w[i] * f.Model().Params()[k].Value()
		}
	}
	return means
}

// Particles returns the current outer particle ensemble.
func (s *SMC2) Particles() []algorithm.InnerFilter { return s.particles }

// LogWeights returns a copy of the current outer log-weights.
func (s *SMC2) LogWeights() []float64 { return append([]float64(nil), s.logW...) }

// ESS returns the current outer effective sample size.
func (s *SMC2) ESS() float64 { return resample.ESSFromLogW(s.logW) }

// N returns the current per-particle inner state-particle count.
func (s *SMC2) N() int { return s.nCurrent }
