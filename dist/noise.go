package dist

import (
	"fmt"
	"math"

	"github.com/nessmc/pfilter/rnd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

// Noise is a (possibly multivariate) distribution used as an increment
// source by proc.BaseProcess: ISample draws ε0 ~ Noise0, Propagate draws
// ε ~ Noise. Sample draws a batch of n column vectors at once so a
// BaseProcess can vectorize a whole particle ensemble in one call.
type Noise interface {
	// Sample draws n samples, returned as the columns of a Dim() x n matrix.
	Sample(src *rnd.Source, n int) *mat.Dense
	// LogPDF evaluates the log-density at each column of x, returning a
	// length-(number of columns) vector.
	LogPDF(x mat.Matrix) *mat.VecDense
	Dim() int
	// Std returns the per-dimension marginal standard deviation. Proposals
	// that need a closed-form or linearized Gaussian update (proposal.
	// Linearized, proposal.Unscented, proposal.LinearGaussianOpt) use this
	// together with a process's ScaleFunc to get an effective diagonal
	// transition/observation standard deviation -- consistent with
	// BaseProcess's diagonal ScaleFunc.
	Std() []float64
}

// Gaussian is zero-mean (or given-mean) Gaussian noise with covariance cov.
// For Dim()==1 it is backed by distuv.Normal; for Dim()>1 by distmv.Normal.
type Gaussian struct {
	mean []float64
	cov  *mat.SymDense
	uni  distuv.Normal
	mv   *distmv.Normal
}

// NewGaussian creates Gaussian noise with the given mean and covariance. It
// fails if mean and cov have mismatched dimensions, or if cov isn't positive
// definite.
func NewGaussian(mean []float64, cov *mat.SymDense) (*Gaussian, error) {
	dim := cov.Symmetric()
	if len(mean) != dim {
		return nil, fmt.Errorf("mean length %d does not match covariance dimension %d", len(mean), dim)
	}

	g := &Gaussian{mean: mean, cov: cov}
	if dim == 1 {
		g.uni = distuv.Normal{Mu: mean[0], Sigma: math.Sqrt(cov.At(0, 0))}
		return g, nil
	}

	mv, ok := distmv.NewNormal(mean, cov, nil)
	if !ok {
		return nil, fmt.Errorf("covariance matrix is not positive definite")
	}
	g.mv = mv
	return g, nil
}

func (g *Gaussian) Dim() int { return len(g.mean) }

func (g *Gaussian) Std() []float64 {
	out := make([]float64, g.Dim())
	for i := range out {
		out[i] = math.Sqrt(g.cov.At(i, i))
	}
	return out
}

func (g *Gaussian) Sample(src *rnd.Source, n int) *mat.Dense {
	dim := g.Dim()
	out := mat.NewDense(dim, n, nil)
	if dim == 1 {
		for c := 0; c < n; c++ {
			out.Set(0, c, g.mean[0]+math.Sqrt(g.cov.At(0, 0))*src.NormFloat64())
		}
		return out
	}

	mv, _ := distmv.NewNormal(g.mean, g.cov, src.Rand())
	for c := 0; c < n; c++ {
		col := mv.Rand(nil)
		for r := 0; r < dim; r++ {
			out.Set(r, c, col[r])
		}
	}
	return out
}

func (g *Gaussian) LogPDF(x mat.Matrix) *mat.VecDense {
	rows, cols := x.Dims()
	out := mat.NewVecDense(cols, nil)

	if rows == 1 {
		for c := 0; c < cols; c++ {
			out.SetVec(c, g.uni.LogProb(x.At(0, c)))
		}
		return out
	}

	col := make([]float64, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			col[r] = x.At(r, c)
		}
		out.SetVec(c, g.mv.LogProb(col))
	}
	return out
}

// None is the absence of noise: Sample always returns zeros and LogPDF
// always returns zero regardless of x -- used by proc.Observable and by any
// process whose initial or transition step has no stochastic increment.
type None struct {
	dim int
}

// NewNone creates a None noise source of the given dimension.
func NewNone(dim int) *None { return &None{dim: dim} }

func (n *None) Dim() int { return n.dim }

func (n *None) Std() []float64 { return make([]float64, n.dim) }

func (n *None) Sample(src *rnd.Source, count int) *mat.Dense {
	return mat.NewDense(n.dim, count, nil)
}

func (n *None) LogPDF(x mat.Matrix) *mat.VecDense {
	_, cols := x.Dims()
	return mat.NewVecDense(cols, nil)
}
