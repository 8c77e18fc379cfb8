package field

import (
	"context"
	"fmt"
	"runtime"

	"github.com/notargets/RPTKernel/mesh"
	"github.com/notargets/RPTKernel/partitions"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// CountModel gives the expected count of one detector for a particle at p
type CountModel interface {
	Count(p r3.Vec) float64
}

// CountFunc adapts a function to a CountModel
type CountFunc func(p r3.Vec) float64

func (f CountFunc) Count(p r3.Vec) float64 { return f(p) }

// Sample builds a store by evaluating each detector model at every mesh node.
// Node blocks are computed by independent workers into disjoint slices of the
// per-detector fields; the store is assembled once all workers finish.
func Sample(ctx context.Context, m *mesh.Mesh, models []CountModel, workers int) (*Store, error) {
	if len(models) == 0 {
		return nil, ErrNoDetectors
	}
	pos, unmapped := m.NodePositions()
	if len(unmapped) > 0 {
		return nil, fmt.Errorf("nodes %v have no vertex to sample at", unmapped)
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	layout, err := partitions.NewWorkerLayout(m.NumNodes, workers)
	if err != nil {
		return nil, err
	}

	counts := make([][]float64, len(models))
	for d := range counts {
		counts[d] = make([]float64, m.NumNodes)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, part := range layout.Partitions {
		nodes := part.Elements
		g.Go(func() error {
			for d, model := range models {
				if err := ctx.Err(); err != nil {
					return err
				}
				c := counts[d]
				for _, n := range nodes {
					c[n] = model.Count(pos[n])
				}
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return NewStore(m, counts)
}
