package element

import "fmt"

// Dimensionality represents the spatial dimension of an element
type Dimensionality uint8

const (
	D2 Dimensionality = iota + 2 // 2D elements (triangles)
	D3                           // 3D elements (tetrahedra)
)

// NumVertices returns the vertex count of the simplex of this dimension
func (d Dimensionality) NumVertices() int { return int(d) + 1 }

func (d Dimensionality) String() string { return fmt.Sprintf("%dD", int(d)) }

// GeometryType identifies the shape of an element
type GeometryType uint8

const (
	Tet GeometryType = iota // Tetrahedron
	Tri                     // Triangle
)

// SimplexOf returns the simplex geometry used for meshes of dimension d
func SimplexOf(d Dimensionality) (GeometryType, error) {
	switch d {
	case D3:
		return Tet, nil
	case D2:
		return Tri, nil
	}
	return 0, fmt.Errorf("no simplex element for dimension %v", d)
}

func (g GeometryType) Dimensions() Dimensionality {
	if g == Tri {
		return D2
	}
	return D3
}

func (g GeometryType) String() string {
	switch g {
	case Tet:
		return "Tet"
	case Tri:
		return "Tri"
	}
	return fmt.Sprintf("GeometryType(%d)", uint8(g))
}

// ElementProperties contains metadata describing a linear simplex element
type ElementProperties struct {
	Name       string         // Full descriptive name (e.g., "Linear Tetrahedron")
	ShortName  string         // Abbreviated name (e.g., "Tet1")
	Type       GeometryType   // Element shape
	NVp        int            // Number of vertex nodes (equals number of vertices)
	NEdges     int            // Number of edges in each element
	NFaces     int            // Number of faces in each element
	Dimensions Dimensionality // Spatial dimension (2D or 3D)
}

// Properties returns the metadata of the linear element of geometry g
func (g GeometryType) Properties() ElementProperties {
	switch g {
	case Tri:
		return ElementProperties{
			Name:       "Linear Triangle",
			ShortName:  "Tri1",
			Type:       Tri,
			NVp:        3,
			NEdges:     3,
			NFaces:     3,
			Dimensions: D2,
		}
	default:
		return ElementProperties{
			Name:       "Linear Tetrahedron",
			ShortName:  "Tet1",
			Type:       Tet,
			NVp:        4,
			NEdges:     6,
			NFaces:     4,
			Dimensions: D3,
		}
	}
}
