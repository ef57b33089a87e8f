// Package rnd provides an explicit, non-global handle onto a source of
// pseudorandom variates, along with the sampling primitives the rest of the
// module needs (covariance-shaped draws, categorical draws over log-weights).
//
// No function in this package or its callers reaches for math/rand's global
// source: every sampling call takes a *Source explicitly, so a caller can run
// two filters side by side with independent, reproducible streams.
package rnd

import (
	"fmt"
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Source wraps a pseudorandom generator. It is the only cross-cutting
// resource threaded through the module: models, proposals, resamplers and
// outer algorithms all take a *Source rather than touching package-level
// state.
type Source struct {
	rng *rand.Rand
}

// New creates a new Source seeded with seed.
func New(seed uint64) *Source {
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// Rand returns the underlying *rand.Rand, for callers (e.g. gonum's distmv)
// that need to be handed a rand.Source directly.
func (s *Source) Rand() *rand.Rand {
	return s.rng
}

// Float64 draws a single uniform variate in [0, 1).
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// NormFloat64 draws a single standard normal variate.
func (s *Source) NormFloat64() float64 {
	return s.rng.NormFloat64()
}

// WithCovN draws n samples from a zero-mean Normal distribution with
// covariance cov, returning them as the columns of a dense matrix.
// It fails if n is non-positive or the SVD factorization of cov fails --
// SVD is used rather than Cholesky because cov can be (near) singular when
// a parameter particle cloud has collapsed onto a lower-dimensional manifold.
func (s *Source) WithCovN(cov mat.Symmetric, n int) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	var svd mat.SVD
	if ok := svd.Factorize(cov, mat.SVDFull); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	u := new(mat.Dense)
	svd.UTo(u)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	u.Mul(u, mat.NewDiagDense(len(vals), vals))

	rows, _ := cov.Dims()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = s.rng.NormFloat64()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(u, samples)

	return samples, nil
}

// CategoricalDrawN draws n indices into p according to the probability mass
// function p represents (need not be normalized). It implements the
// roulette-wheel / fitness-proportionate-selection draw used by multinomial
// resampling: http://www.keithschwarz.com/darts-dice-coins/
func (s *Source) CategoricalDrawN(p []float64, n int) []int {
	cdf := make([]float64, len(p))
	floats.CumSum(cdf, p)

	total := cdf[len(cdf)-1]
	indices := make([]int, n)
	for i := range indices {
		val := s.rng.Float64() * total
		indices[i] = sort.Search(len(cdf), func(i int) bool { return cdf[i] > val })
	}

	return indices
}
