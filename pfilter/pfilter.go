// Package pfilter implements ParticleFilter: the SISR/auxiliary particle
// filter inner-filter contract the outer NESS/SMC² algorithms drive one
// observation at a time. It is the particle analogue of the teacher's
// particle/bf.BF, generalized from a single bootstrap proposal to any
// proposal.Proposal and any resample.Resampler, and from the teacher's plain
// []float64 weight vector to a log-domain *mat.VecDense so weights never
// underflow across a long stream.
package pfilter

import (
	"fmt"
	"math"

	"github.com/nessmc/pfilter/algorithm"
	"github.com/nessmc/pfilter/proposal"
	"github.com/nessmc/pfilter/resample"
	"github.com/nessmc/pfilter/rnd"
	"github.com/nessmc/pfilter/ssm"
	"gonum.org/v1/gonum/mat"
)

// State is the filter's lifecycle stage, mirroring the teacher's Estimate
// state machine in spirit: a filter must be Initialized before Filter can be
// called on it.
type State int

const (
	Uninitialized State = iota
	Initialized
	Running
	Terminal
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Initialized:
		return "Initialized"
	case Running:
		return "Running"
	case Terminal:
		return "Terminal"
	default:
		return "Unknown"
	}
}

// ErrNotInitialized is returned by Filter/LongFilter on a filter that hasn't
// had Initialize called on it yet.
var ErrNotInitialized = fmt.Errorf("pfilter: filter not initialized")

// ErrNonFiniteWeight is returned by Filter when the incremental log-weight
// sum underflows to -Inf or produces NaN -- spec.md's "record incremental
// log-ℓ" step failing outright rather than being silently patched.
var ErrNonFiniteWeight = fmt.Errorf("pfilter: non-finite particle weight")

// ParticleFilter is a single (N-particle) SISR/APF filter for one
// StateSpaceModel. The outer algorithms (ness, smc2) hold M independent
// ParticleFilters -- one per outer parameter particle -- rather than a
// single filter vectorized over a third dimension; see DESIGN.md for why
// that keeps the inner filter contract simple and still lets the outer
// layer vectorize across M via ordinary Go slices and goroutines if needed.
type ParticleFilter struct {
	model        *ssm.StateSpaceModel
	prop         proposal.Proposal
	resampler    resample.Resampler
	n            int
	threshold    float64
	state        State
	roughen      bool    // whether Filter roughens particles after resampling
	roughenAlpha float64 // roughening bandwidth; <= 0 means "pick via resample.AlphaGauss"

	x    *mat.Dense    // current particle set, Dim() x n
	logW *mat.VecDense // current unnormalized log-weights, length n

	sll []float64        // incremental log-ℓ history
	smx []*mat.Dense     // particle-set history (post weighting, pre possible resample)
	sl  []*mat.VecDense  // log-weight history (post weighting, pre possible resample)
	sn  [][]int          // ancestry-index history; nil entry means no resample that step
}

// New attaches a proposal and resampler to model and allocates an
// n-particle filter. threshold is the ESS fraction (of n) below which
// Filter resamples.
func New(model *ssm.StateSpaceModel, prop proposal.Proposal, resampler resample.Resampler, n int, threshold float64) (*ParticleFilter, error) {
	if n <= 0 {
		return nil, fmt.Errorf("pfilter: invalid particle count %d", n)
	}
	return &ParticleFilter{
		model:     model,
		prop:      prop,
		resampler: resampler,
		n:         n,
		threshold: threshold,
		state:     Uninitialized,
	}, nil
}

// SetRoughening enables or disables post-resample particle roughening
// (Liu & West's kernel smoothing, adapted from the teacher's BF.Resample):
// whenever Filter resamples, it perturbs the surviving particles by a draw
// from a zero-mean Gaussian shaped by their own empirical covariance,
// spreading out particles that collapsed onto duplicate ancestors. alpha is
// the roughening bandwidth; alpha <= 0 picks it automatically via
// resample.AlphaGauss. Disabled by default.
func (pf *ParticleFilter) SetRoughening(enabled bool, alpha float64) *ParticleFilter {
	pf.roughen = enabled
	pf.roughenAlpha = alpha
	return pf
}

// Initialize draws the initial particle ensemble from the hidden process's
// initial distribution and resets all history, leaving the filter in state
// Initialized.
func (pf *ParticleFilter) Initialize(src *rnd.Source) error {
	x0, err := pf.model.Hidden.ISample(src, pf.n)
	if err != nil {
		return fmt.Errorf("pfilter: initialize: %w", err)
	}
	pf.x = x0
	pf.logW = mat.NewVecDense(pf.n, nil) // log(1) == 0, uniform unnormalized weights
	pf.sll = nil
	pf.smx = nil
	pf.sl = nil
	pf.sn = nil
	pf.state = Initialized
	return nil
}

func logSumExp(v *mat.VecDense) float64 {
	n := v.Len()
	maxV := v.AtVec(0)
	for i := 1; i < n; i++ {
		if v.AtVec(i) > maxV {
			maxV = v.AtVec(i)
		}
	}
	if math.IsInf(maxV, -1) {
		return maxV
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += math.Exp(v.AtVec(i) - maxV)
	}
	return maxV + math.Log(sum)
}

func essFromLogW(v *mat.VecDense) float64 {
	n := v.Len()
	raw := make([]float64, n)
	for i := 0; i < n; i++ {
		raw[i] = v.AtVec(i)
	}
	return resample.ESSFromLogW(raw)
}

func gatherCols(x *mat.Dense, idx []int) *mat.Dense {
	rows, _ := x.Dims()
	out := mat.NewDense(rows, len(idx), nil)
	for c, a := range idx {
		for r := 0; r < rows; r++ {
			out.Set(r, c, x.At(r, a))
		}
	}
	return out
}

// Filter advances the filter one step given observation y: draw, weight,
// record incremental log-ℓ, compute ESS, and conditionally resample --
// spec.md §4.7 steps (a)-(e), in that exact order (the incremental log-ℓ
// must be recorded before resampling).
func (pf *ParticleFilter) Filter(src *rnd.Source, y mat.Vector) (float64, error) {
	if pf.state == Uninitialized {
		return 0, ErrNotInitialized
	}

	xNew := pf.prop.Draw(src, y, pf.x)
	inc := pf.prop.Weight(y, xNew, pf.x)

	newLogW := mat.NewVecDense(pf.n, nil)
	for i := 0; i < pf.n; i++ {
		newLogW.SetVec(i, pf.logW.AtVec(i)+inc.AtVec(i))
	}

	ll := logSumExp(newLogW) - math.Log(float64(pf.n))
	if math.IsInf(ll, -1) || math.IsNaN(ll) {
		return 0, ErrNonFiniteWeight
	}

	pf.sll = append(pf.sll, ll)
	pf.smx = append(pf.smx, mat.DenseCopyOf(xNew))
	pf.sl = append(pf.sl, vecClone(newLogW))

	ess := essFromLogW(newLogW)

	pf.x = xNew
	pf.logW = newLogW

	var ancestry []int
	if ess < pf.threshold*float64(pf.n) {
		logWRow := mat.NewDense(1, pf.n, newLogW.RawVector().Data)
		idxRow := pf.resampler.Draw(src, logWRow)
		ancestry = make([]int, pf.n)
		for c := 0; c < pf.n; c++ {
			ancestry[c] = int(idxRow.At(0, c))
		}
		pf.x = gatherCols(xNew, ancestry)
		pf.logW = mat.NewVecDense(pf.n, nil)
		if pf.roughen && pf.n > 1 {
			rough, err := resample.Roughen(src, pf.x, pf.roughenAlpha)
			if err != nil {
				return 0, fmt.Errorf("pfilter: roughen: %w", err)
			}
			pf.x = rough
		}
	}
	pf.sn = append(pf.sn, ancestry)

	pf.state = Running
	return ll, nil
}

// LongFilter calls Filter once per column of y (a Dim(observable) x T
// observation matrix), returning the per-step incremental log-ℓ values.
func (pf *ParticleFilter) LongFilter(src *rnd.Source, y *mat.Dense) ([]float64, error) {
	_, steps := y.Dims()
	out := make([]float64, steps)
	for t := 0; t < steps; t++ {
		ll, err := pf.Filter(src, y.ColView(t))
		if err != nil {
			return nil, fmt.Errorf("pfilter: longfilter step %d: %w", t, err)
		}
		out[t] = ll
	}
	return out, nil
}

// Resample overwrites the current particle set with x[:, idx], as an outer
// algorithm does when it resamples its ensemble of inner filters along with
// each filter's current state. If entireHistory is true, the whole
// sll/smx/sl/sn history is discarded (the outer algorithm is about to rejuvenate or has no
// further use for it); otherwise only the current particle set changes.
func (pf *ParticleFilter) Resample(idx []int, entireHistory bool) error {
	if len(idx) != pf.n {
		return fmt.Errorf("pfilter: resample index count %d does not match particle count %d", len(idx), pf.n)
	}
	pf.x = gatherCols(pf.x, idx)
	pf.logW = mat.NewVecDense(pf.n, nil)
	if entireHistory {
		pf.sll = nil
		pf.smx = nil
		pf.sl = nil
		pf.sn = nil
	}
	return nil
}

// Copy returns a deep copy of pf, independent of further mutation -- used by
// smc2 to snapshot a parameter particle's inner filter before attempting a
// PMMH rejuvenation move.
func (pf *ParticleFilter) Copy() *ParticleFilter {
	clonedModel := pf.model.Clone()
	cp := &ParticleFilter{
		model:        clonedModel,
		prop:         pf.prop.Rebind(clonedModel),
		resampler:    pf.resampler,
		n:            pf.n,
		threshold:    pf.threshold,
		state:        pf.state,
		roughen:      pf.roughen,
		roughenAlpha: pf.roughenAlpha,
	}
	if pf.x != nil {
		cp.x = mat.DenseCopyOf(pf.x)
	}
	if pf.logW != nil {
		cp.logW = vecClone(pf.logW)
	}
	cp.sll = append([]float64(nil), pf.sll...)
	for _, m := range pf.smx {
		cp.smx = append(cp.smx, mat.DenseCopyOf(m))
	}
	for _, v := range pf.sl {
		cp.sl = append(cp.sl, vecClone(v))
	}
	for _, idx := range pf.sn {
		cp.sn = append(cp.sn, append([]int(nil), idx...))
	}
	return cp
}

// Reset clears pf's history in place and returns pf, so callers can chain
// Copy().Reset() the way the teacher's estimate types chain builder calls.
func (pf *ParticleFilter) Reset() *ParticleFilter {
	pf.sll = nil
	pf.smx = nil
	pf.sl = nil
	pf.sn = nil
	return pf
}

// Clone satisfies algorithm.InnerFilter: a deep copy usable by the outer
// ness/smc2 algorithms without knowing the concrete filter type.
func (pf *ParticleFilter) Clone() algorithm.InnerFilter { return pf.Copy() }

// ResetFilter satisfies algorithm.InnerFilter.
func (pf *ParticleFilter) ResetFilter() algorithm.InnerFilter { return pf.Reset() }

// Mean returns the current weighted mean of the particle ensemble, i.e. the
// filtered state estimate, satisfying algorithm.InnerFilter.
func (pf *ParticleFilter) Mean() *mat.VecDense {
	if pf.x == nil {
		return nil
	}
	rows, cols := pf.x.Dims()
	raw := make([]float64, cols)
	for c := 0; c < cols; c++ {
		raw[c] = pf.logW.AtVec(c)
	}
	w := resample.NormalizeLogW(raw)

	mean := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		sum := 0.0
		for c := 0; c < cols; c++ {
			sum += w[c] * pf.x.At(r, c)
		}
		mean.SetVec(r, sum)
	}
	return mean
}

func vecClone(v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}

// State reports the filter's current lifecycle state.
func (pf *ParticleFilter) State() State { return pf.state }

// N returns the particle count.
func (pf *ParticleFilter) N() int { return pf.n }

// Model returns the StateSpaceModel the filter was built with.
func (pf *ParticleFilter) Model() *ssm.StateSpaceModel { return pf.model }

// X returns a defensive copy of the current particle set.
func (pf *ParticleFilter) X() *mat.Dense {
	if pf.x == nil {
		return nil
	}
	return mat.DenseCopyOf(pf.x)
}

// LogWeights returns a defensive copy of the current unnormalized
// log-weights.
func (pf *ParticleFilter) LogWeights() *mat.VecDense {
	if pf.logW == nil {
		return nil
	}
	return vecClone(pf.logW)
}

// ESS returns the effective sample size of the current weight set.
func (pf *ParticleFilter) ESS() float64 {
	if pf.logW == nil {
		return 0
	}
	return essFromLogW(pf.logW)
}

// SLL returns a copy of the incremental log-ℓ history.
func (pf *ParticleFilter) SLL() []float64 { return append([]float64(nil), pf.sll...) }

// SMx returns a copy of the particle-set history (each entry itself
// defensively copied).
func (pf *ParticleFilter) SMx() []*mat.Dense {
	out := make([]*mat.Dense, len(pf.smx))
	for i, m := range pf.smx {
		out[i] = mat.DenseCopyOf(m)
	}
	return out
}

// SN returns a copy of the ancestry-index history; a nil entry at index t
// means no resample occurred at step t.
func (pf *ParticleFilter) SN() [][]int {
	out := make([][]int, len(pf.sn))
	for i, idx := range pf.sn {
		out[i] = append([]int(nil), idx...)
	}
	return out
}

// SL returns a copy of the log-weight history.
func (pf *ParticleFilter) SL() []*mat.VecDense {
	out := make([]*mat.VecDense, len(pf.sl))
	for i, v := range pf.sl {
		out[i] = vecClone(v)
	}
	return out
}
