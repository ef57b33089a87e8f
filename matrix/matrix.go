// Package matrix collects the one gonum-based helper the outer
// parameter-inference packages need that the real github.com/milosgajdos/matrix
// module doesn't provide: the weighted mean/covariance of a particle cloud
// stored in the columns of a dense matrix. Equally-weighted covariance (the
// teacher's own matrix.Cov) is covered by the real module directly -- see
// resample.Roughen.
package matrix

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// WeightedMeanCov computes the weighted mean and covariance of particles
// stored as the columns of m, given normalized weights w (len(w) == number
// of columns). It is used by SMC² to summarize its parameter-particle cloud
// in unconstrained space when building the rejuvenation proposal.
func WeightedMeanCov(m *mat.Dense, w []float64) (*mat.VecDense, *mat.SymDense, error) {
	rows, cols := m.Dims()
	if cols != len(w) {
		return nil, nil, fmt.Errorf("weights length %d does not match particle count %d", len(w), cols)
	}

	mean := mat.NewVecDense(rows, nil)
	row := make([]float64, cols)
	for r := 0; r < rows; r++ {
		copy(row, m.RawRowView(r))
		mean.SetVec(r, stat.Mean(row, w))
	}

	sumW := floats.Sum(w)
	cov := mat.NewDense(rows, rows, nil)
	for i := 0; i < rows; i++ {
		for j := i; j < rows; j++ {
			var c float64
			for k := 0; k < cols; k++ {
				c += w[k] * (m.At(i, k) - mean.AtVec(i)) * (m.At(j, k) - mean.AtVec(j))
			}
			c /= sumW
			cov.Set(i, j, c)
			cov.Set(j, i, c)
		}
	}

	sym, err := ToSymDense(cov)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to symmetrize weighted covariance: %w", err)
	}

	return mean, sym, nil
}

func rowOf(m *mat.Dense, i int) []float64 {
	src := m.RawRowView(i)
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

// ToSymDense converts m to SymDense (symmetric Dense matrix) if possible.
// It returns error if the provided Dense matrix is not symmetric.
func ToSymDense(m *mat.Dense) (*mat.SymDense, error) {
	r, c := m.Dims()
	if r != c {
		return nil, errors.New("Matrix must be square")
	}

	mT := m.T()
	vals := make([]float64, r*c)
	idx := 0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if i != j && !floats.EqualWithinAbsOrRel(mT.At(i, j), m.At(i, j), 1e-6, 1e-2) {
				return nil, fmt.Errorf("Matrix not symmetric (%d, %d): %.40f != %.40f", i, j, mT.At(i, j), m.At(i, j))
			}
			vals[idx] = m.At(i, j)
			idx++
		}
	}

	return mat.NewSymDense(r, vals), nil
}
