package mesh

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// Adjacency is the cell graph of a mesh: two cells are adjacent when they
// share at least one vertex. It is built once and read-only afterwards.
type Adjacency struct {
	g        *simple.UndirectedGraph
	numCells int
}

// BuildAdjacency builds the vertex-sharing cell graph
func (m *Mesh) BuildAdjacency() *Adjacency {
	g := simple.NewUndirectedGraph()
	for k := 0; k < m.NumElements; k++ {
		g.AddNode(simple.Node(k))
	}

	// Vertex to cell incidence
	VToE := make([][]int, m.NumVertices)
	for k, verts := range m.EToV {
		for _, v := range verts {
			VToE[v] = append(VToE[v], k)
		}
	}
	for _, cells := range VToE {
		for i, a := range cells {
			for _, b := range cells[i+1:] {
				if !g.HasEdgeBetween(int64(a), int64(b)) {
					g.SetEdge(g.NewEdge(simple.Node(a), simple.Node(b)))
				}
			}
		}
	}
	return &Adjacency{g: g, numCells: m.NumElements}
}

// Graph exposes the underlying cell graph
func (a *Adjacency) Graph() graph.Undirected { return a.g }

// Neighbors returns the cells sharing a vertex with cell k, ascending
func (a *Adjacency) Neighbors(k int) []int {
	var nbrs []int
	nodes := a.g.From(int64(k))
	for nodes.Next() {
		nbrs = append(nbrs, int(nodes.Node().ID()))
	}
	sort.Ints(nbrs)
	return nbrs
}

// Neighborhood returns the anchor cell plus every cell reachable within level
// adjacency hops. The frontier of cells added at hop h is the only set
// expanded at hop h+1; the visited set doubles as the result.
func (a *Adjacency) Neighborhood(anchor, level int) *roaring.Bitmap {
	visited := roaring.New()
	if anchor < 0 || anchor >= a.numCells {
		return visited
	}
	visited.Add(uint32(anchor))

	frontier := []int64{int64(anchor)}
	for hop := 0; hop < level && len(frontier) > 0; hop++ {
		var next []int64
		for _, k := range frontier {
			nodes := a.g.From(k)
			for nodes.Next() {
				id := nodes.Node().ID()
				if visited.CheckedAdd(uint32(id)) {
					next = append(next, id)
				}
			}
		}
		frontier = next
	}
	return visited
}

// Cells converts a cell set into ascending cell indices
func Cells(set *roaring.Bitmap) []int {
	ids := set.ToArray()
	cells := make([]int, len(ids))
	for i, id := range ids {
		cells[i] = int(id)
	}
	return cells
}
