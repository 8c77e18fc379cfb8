package mesh

import (
	"fmt"

	"github.com/notargets/RPTKernel/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kuhn subdivision of the unit cube into six tetrahedra. Corner c has bits
// (x, y, z) = (c&1, c>>1&1, c>>2&1); every tet follows a monotone path from
// corner 0 to corner 7, so neighboring cubes share conforming faces.
var kuhnTets = [6][4]int{
	{0, 1, 3, 7},
	{0, 1, 5, 7},
	{0, 2, 3, 7},
	{0, 2, 6, 7},
	{0, 4, 5, 7},
	{0, 4, 6, 7},
}

var squareTris = [2][3]int{
	{0, 1, 3},
	{0, 2, 3},
}

// NewBox builds a structured simplex mesh of the box [lo, hi] with n[i]
// subdivisions per axis. For D2 only n[0], n[1] and the X, Y bounds are used.
func NewBox(dim element.Dimensionality, n [3]int, lo, hi r3.Vec) (*Mesh, error) {
	nz := n[2]
	if dim == element.D2 {
		nz = 0
	}
	if n[0] < 1 || n[1] < 1 || (dim == element.D3 && nz < 1) {
		return nil, fmt.Errorf("box subdivisions must be positive, got %v", n)
	}
	nx, ny := n[0], n[1]
	vid := func(i, j, k int) int { return i + (nx+1)*(j+(ny+1)*k) }
	coord := func(a, b float64, i, n int) float64 {
		return a + (b-a)*float64(i)/float64(n)
	}

	var verts []r3.Vec
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				v := r3.Vec{X: coord(lo.X, hi.X, i, nx), Y: coord(lo.Y, hi.Y, j, ny)}
				if dim == element.D3 {
					v.Z = coord(lo.Z, hi.Z, k, nz)
				}
				verts = append(verts, v)
			}
		}
	}

	var EToV [][]int
	if dim == element.D2 {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				corner := [4]int{vid(i, j, 0), vid(i+1, j, 0), vid(i, j+1, 0), vid(i+1, j+1, 0)}
				for _, tri := range squareTris {
					EToV = append(EToV, []int{corner[tri[0]], corner[tri[1]], corner[tri[2]]})
				}
			}
		}
		return New(dim, verts, EToV)
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				var corner [8]int
				for c := range corner {
					corner[c] = vid(i+c&1, j+c>>1&1, k+c>>2&1)
				}
				for _, tet := range kuhnTets {
					EToV = append(EToV, []int{corner[tet[0]], corner[tet[1]], corner[tet[2]], corner[tet[3]]})
				}
			}
		}
	}
	return New(dim, verts, EToV)
}
