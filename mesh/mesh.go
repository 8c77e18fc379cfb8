package mesh

import (
	"fmt"
	"math"
	"strings"

	"github.com/notargets/RPTKernel/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is an unstructured simplex mesh. Cells are identified by their index
// into EToV. Nodal fields are indexed through VToN, which maps every vertex to
// the node index used by the field computation.
type Mesh struct {
	Dim      element.Dimensionality
	Geometry element.GeometryType

	Vertices []r3.Vec // Vertex coordinates, Z = 0 for 2D meshes
	EToV     [][]int  // [K][Dim+1] cell to vertex connectivity
	VToN     []int    // Vertex to node index
	NumNodes int      // Size of the node index space

	NumElements int
	NumVertices int
}

// New creates a mesh with the identity vertex to node map
func New(dim element.Dimensionality, vertices []r3.Vec, EToV [][]int) (*Mesh, error) {
	geom, err := element.SimplexOf(dim)
	if err != nil {
		return nil, err
	}
	m := &Mesh{
		Dim:         dim,
		Geometry:    geom,
		Vertices:    vertices,
		EToV:        EToV,
		NumElements: len(EToV),
		NumVertices: len(vertices),
	}
	if err = m.validateCells(); err != nil {
		return nil, err
	}
	VToN := make([]int, len(vertices))
	for i := range VToN {
		VToN[i] = i
	}
	if err = m.SetNodeMap(VToN, len(vertices)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mesh) validateCells() error {
	if m.NumElements == 0 {
		return fmt.Errorf("mesh has no cells")
	}
	nv := m.Dim.NumVertices()
	for k, verts := range m.EToV {
		if len(verts) != nv {
			return fmt.Errorf("cell %d has %d vertices, %v simplex needs %d", k, len(verts), m.Dim, nv)
		}
		for i, v := range verts {
			if v < 0 || v >= m.NumVertices {
				return fmt.Errorf("cell %d references vertex %d, mesh has %d vertices", k, v, m.NumVertices)
			}
			for _, w := range verts[:i] {
				if w == v {
					return fmt.Errorf("cell %d repeats vertex %d", k, v)
				}
			}
		}
	}
	return nil
}

// SetNodeMap replaces the vertex to node map. Every vertex must map into
// [0, numNodes).
func (m *Mesh) SetNodeMap(VToN []int, numNodes int) error {
	if len(VToN) != m.NumVertices {
		return fmt.Errorf("node map has %d entries, mesh has %d vertices", len(VToN), m.NumVertices)
	}
	for v, n := range VToN {
		if n < 0 || n >= numNodes {
			return fmt.Errorf("vertex %d maps to node %d outside [0,%d)", v, n, numNodes)
		}
	}
	m.VToN = VToN
	m.NumNodes = numNodes
	return nil
}

// CellVertices fills dst with the vertex coordinates of cell k
func (m *Mesh) CellVertices(k int, dst []r3.Vec) []r3.Vec {
	dst = dst[:0]
	for _, v := range m.EToV[k] {
		dst = append(dst, m.Vertices[v])
	}
	return dst
}

// CellNodes fills dst with the node indices of the vertices of cell k
func (m *Mesh) CellNodes(k int, dst []int) []int {
	dst = dst[:0]
	for _, v := range m.EToV[k] {
		dst = append(dst, m.VToN[v])
	}
	return dst
}

// NodePositions returns the location of every node, taken from the first
// vertex mapped onto it. Nodes no vertex maps onto are reported in unmapped.
func (m *Mesh) NodePositions() (pos []r3.Vec, unmapped []int) {
	pos = make([]r3.Vec, m.NumNodes)
	seen := make([]bool, m.NumNodes)
	for v, n := range m.VToN {
		if !seen[n] {
			pos[n] = m.Vertices[v]
			seen[n] = true
		}
	}
	for n, ok := range seen {
		if !ok {
			unmapped = append(unmapped, n)
		}
	}
	return
}

// EdgeLengths returns the minimum, maximum and mean cell edge length
func (m *Mesh) EdgeLengths() (min, max, mean float64) {
	min = math.Inf(1)
	var n int
	for _, verts := range m.EToV {
		for i := 0; i < len(verts); i++ {
			for j := i + 1; j < len(verts); j++ {
				l := r3.Norm(r3.Sub(m.Vertices[verts[j]], m.Vertices[verts[i]]))
				if l < min {
					min = l
				}
				if l > max {
					max = l
				}
				mean += l
				n++
			}
		}
	}
	if n == 0 {
		return 0, 0, 0
	}
	mean /= float64(n)
	return
}

// CharacteristicLength is the mean cell edge length
func (m *Mesh) CharacteristicLength() float64 {
	_, _, mean := m.EdgeLengths()
	return mean
}

// Bounds returns the axis aligned bounding box of the vertices
func (m *Mesh) Bounds() (lo, hi r3.Vec) {
	if m.NumVertices == 0 {
		return
	}
	lo, hi = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		lo = r3.Vec{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vec{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return
}

// String returns a summary of the mesh
func (m *Mesh) String() string {
	var sb strings.Builder

	props := m.Geometry.Properties()
	sb.WriteString("=== Mesh Summary ===\n")
	sb.WriteString(fmt.Sprintf("  Element: %s (%s)\n", props.Name, props.ShortName))
	sb.WriteString(fmt.Sprintf("  Dimensions: %v\n", m.Dim))
	sb.WriteString(fmt.Sprintf("  Number of elements: %d\n", m.NumElements))
	sb.WriteString(fmt.Sprintf("  Number of vertices: %d\n", m.NumVertices))
	sb.WriteString(fmt.Sprintf("  Number of nodes: %d\n", m.NumNodes))

	lo, hi := m.Bounds()
	sb.WriteString(fmt.Sprintf("  X range: [%.4f, %.4f]\n", lo.X, hi.X))
	sb.WriteString(fmt.Sprintf("  Y range: [%.4f, %.4f]\n", lo.Y, hi.Y))
	if m.Dim == element.D3 {
		sb.WriteString(fmt.Sprintf("  Z range: [%.4f, %.4f]\n", lo.Z, hi.Z))
	}
	emin, emax, emean := m.EdgeLengths()
	sb.WriteString(fmt.Sprintf("  Edge length: min %.4e, max %.4e, mean %.4e\n", emin, emax, emean))
	sb.WriteString("====================\n")
	return sb.String()
}
