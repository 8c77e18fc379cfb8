package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeighbors(t *testing.T) {
	m := unitBox(t, 1)
	adj := m.BuildAdjacency()

	// All six Kuhn tets share the 0-7 diagonal
	for k := 0; k < m.NumElements; k++ {
		nbrs := adj.Neighbors(k)
		assert.Len(t, nbrs, 5)
		assert.NotContains(t, nbrs, k)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, adj.Neighbors(0))
}

func TestNeighborhoodLevels(t *testing.T) {
	m := unitBox(t, 4)
	adj := m.BuildAdjacency()

	for _, anchor := range []int{0, 17, m.NumElements / 2, m.NumElements - 1} {
		level0 := adj.Neighborhood(anchor, 0)
		assert.Equal(t, []int{anchor}, Cells(level0))

		level1 := adj.Neighborhood(anchor, 1)
		want := append([]int{anchor}, adj.Neighbors(anchor)...)
		assert.ElementsMatch(t, want, Cells(level1))

		prev := level1
		for level := 2; level <= 4; level++ {
			cur := adj.Neighborhood(anchor, level)
			for _, k := range prev.ToArray() {
				assert.True(t, cur.Contains(k), "level %d lost cell %d", level, k)
			}
			assert.GreaterOrEqual(t, cur.GetCardinality(), prev.GetCardinality())
			prev = cur
		}
	}

	// Levels saturate at the full mesh
	all := adj.Neighborhood(0, 100)
	assert.Equal(t, uint64(m.NumElements), all.GetCardinality())

	assert.True(t, adj.Neighborhood(-1, 2).IsEmpty())
}

func TestCellsAscending(t *testing.T) {
	m := unitBox(t, 3)
	adj := m.BuildAdjacency()
	cells := Cells(adj.Neighborhood(40, 2))
	for i := 1; i < len(cells); i++ {
		assert.Less(t, cells[i-1], cells[i])
	}
}
