package locate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/notargets/RPTKernel/element"
	"gonum.org/v1/gonum/mat"
)

// ErrSingularCell is returned when a cell's normal equations cannot give
// reference coordinates. Searches skip such cells.
var ErrSingularCell = errors.New("singular cell system")

// svdRankTol is the relative singular value below which directions are
// dropped from the minimum-norm solution
const svdRankTol = 1e-12

// Systems with a larger LU condition number are solved by SVD
const maxCondition = 1e12

// CostMode selects the mismatch metric between observed and interpolated counts
type CostMode uint8

const (
	Absolute CostMode = iota // Σ (count - obs)²
	Relative                 // Σ ((count - obs) / obs)²
)

func (m CostMode) String() string {
	switch m {
	case Absolute:
		return "absolute"
	case Relative:
		return "relative"
	default:
		return fmt.Sprintf("CostMode(%d)", uint8(m))
	}
}

// ParseCostMode accepts "absolute" or "relative", case insensitive
func ParseCostMode(s string) (CostMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "absolute", "abs":
		return Absolute, nil
	case "relative", "rel":
		return Relative, nil
	}
	return 0, fmt.Errorf("unknown cost function %q, want absolute or relative", s)
}

func weight(obs float64, mode CostMode) float64 {
	if mode == Relative {
		return 1 / (obs * obs)
	}
	return 1
}

// SolveCell finds the reference coordinates minimizing the cost over the
// affine extension of one cell. vertexCounts[d][v] is detector d's count at
// vertex v, vertex 0 being the pivot; the dimension is the vertex count
// minus one.
//
// The normal equations are
//
//	A(i,j) = Σ_d w_d (c_d[j+1]-c_d[0]) (c_d[i+1]-c_d[0])
//	b(i)   = -Σ_d w_d (c_d[0]-obs_d) (c_d[i+1]-c_d[0])
//
// with w_d = 1 (absolute) or 1/obs_d² (relative). A singular or ill
// conditioned A falls back to the minimum-norm least-squares solution.
func SolveCell(vertexCounts [][]float64, observed []float64, mode CostMode) ([]float64, error) {
	if len(vertexCounts) == 0 || len(vertexCounts) != len(observed) {
		return nil, fmt.Errorf("%d detector fields for %d observed counts", len(vertexCounts), len(observed))
	}
	dim := len(vertexCounts[0]) - 1
	if dim < 1 {
		return nil, fmt.Errorf("cell needs at least 2 vertices, got %d", dim+1)
	}

	A := mat.NewDense(dim, dim, nil)
	b := mat.NewVecDense(dim, nil)
	for d, c := range vertexCounts {
		w := weight(observed[d], mode)
		r := c[0] - observed[d]
		for i := 0; i < dim; i++ {
			di := c[i+1] - c[0]
			b.SetVec(i, b.AtVec(i)-w*r*di)
			for j := 0; j < dim; j++ {
				A.Set(i, j, A.At(i, j)+w*(c[j+1]-c[0])*di)
			}
		}
	}
	if !finiteMatrix(A) || !finiteVec(b) {
		return nil, ErrSingularCell
	}

	var lu mat.LU
	lu.Factorize(A)
	x := mat.NewVecDense(dim, nil)
	if lu.Cond() > maxCondition {
		return solveMinNorm(A, b)
	}
	if err := lu.SolveVecTo(x, false, b); err == nil {
		ref := x.RawVector().Data
		if element.IsFinite(ref) {
			return ref, nil
		}
	}
	return solveMinNorm(A, b)
}

func solveMinNorm(A *mat.Dense, b *mat.VecDense) ([]float64, error) {
	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDFull) {
		return nil, ErrSingularCell
	}
	rank := svd.Rank(svdRankTol)
	if rank == 0 {
		return nil, ErrSingularCell
	}
	x := mat.NewVecDense(b.Len(), nil)
	svd.SolveVecTo(x, b, rank)
	ref := x.RawVector().Data
	if !element.IsFinite(ref) {
		return nil, ErrSingularCell
	}
	return ref, nil
}

// Cost is the mismatch between observed counts and the counts interpolated at
// ref in a cell with vertex counts nodal[d][v]
func Cost(nodal [][]float64, ref []float64, last float64, observed []float64, mode CostMode) float64 {
	var cost float64
	for d, c := range nodal {
		r := element.Interpolate(c, ref, last) - observed[d]
		cost += r * r * weight(observed[d], mode)
	}
	return cost
}

func finiteMatrix(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		if !element.IsFinite(m.RawRowView(i)[:c]) {
			return false
		}
	}
	return true
}

func finiteVec(v *mat.VecDense) bool {
	return element.IsFinite(v.RawVector().Data)
}

func costIsFinite(c float64) bool { return !math.IsNaN(c) && !math.IsInf(c, 0) }
