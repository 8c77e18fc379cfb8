package field

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/RPTKernel/element"
	"github.com/notargets/RPTKernel/mesh"
)

// ErrNoDetectors is returned when a store is built without any count field
var ErrNoDetectors = errors.New("field store needs at least one detector")

// Store holds the mesh and, per detector, the expected count at every mesh
// node. It is read-only once built and safe to share between search workers.
type Store struct {
	Mesh   *mesh.Mesh
	Counts [][]float64 // [detector][node]
}

// NewStore validates that every detector field covers the node index space
// of the mesh and holds finite, non-negative counts
func NewStore(m *mesh.Mesh, counts [][]float64) (*Store, error) {
	if m == nil {
		return nil, fmt.Errorf("field store needs a mesh")
	}
	if len(counts) == 0 {
		return nil, ErrNoDetectors
	}
	for d, c := range counts {
		if len(c) != m.NumNodes {
			return nil, fmt.Errorf("detector %d: field has %d nodes, mesh has %d", d, len(c), m.NumNodes)
		}
		for n, v := range c {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, fmt.Errorf("detector %d: node %d count is %v", d, n, v)
			}
		}
	}
	return &Store{Mesh: m, Counts: counts}, nil
}

// NumDetectors returns the number of detector fields
func (s *Store) NumDetectors() int { return len(s.Counts) }

// VertexCounts fills dst[d][v] with detector d's count at vertex v of cell k.
// dst is reallocated when its shape does not fit.
func (s *Store) VertexCounts(k int, dst [][]float64) [][]float64 {
	nv := s.Mesh.Dim.NumVertices()
	if len(dst) != len(s.Counts) {
		dst = make([][]float64, len(s.Counts))
	}
	verts := s.Mesh.EToV[k]
	for d, c := range s.Counts {
		if len(dst[d]) != nv {
			dst[d] = make([]float64, nv)
		}
		for v, vid := range verts {
			dst[d][v] = c[s.Mesh.VToN[vid]]
		}
	}
	return dst
}

// Interpolate returns every detector's count at reference coordinates ref of
// cell k
func (s *Store) Interpolate(k int, ref []float64) []float64 {
	vc := s.VertexCounts(k, nil)
	last := element.Last(ref)
	out := make([]float64, len(vc))
	for d, c := range vc {
		out[d] = element.Interpolate(c, ref, last)
	}
	return out
}

// Range returns the minimum and maximum count of detector d
func (s *Store) Range(d int) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range s.Counts[d] {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return
}
