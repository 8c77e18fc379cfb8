package locate

import (
	"fmt"
	"math"
	"runtime"

	"github.com/notargets/RPTKernel/element"
	"github.com/notargets/RPTKernel/field"
	"github.com/notargets/RPTKernel/mesh"
	"github.com/notargets/RPTKernel/partitions"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Candidate sets smaller than this are searched inline
const minParallelCells = 256

// Options configures a Searcher
type Options struct {
	Mode           CostMode
	Tolerance      float64 // Violation must be strictly below this
	ProximityLevel int     // Local search hops, >= 1
	Workers        int     // 0 = GOMAXPROCS, 1 = sequential
}

// Result is the outcome of one search. Defined reports whether Position,
// Reference and Cell carry a value: a failed global search still returns the
// least violating extrapolation, a failed local search returns nothing.
type Result struct {
	Found     bool
	Defined   bool
	Position  r3.Vec
	Reference []float64
	Cost      float64
	Violation float64
	Cell      int // -1 when not Defined

	Examined int // Cells evaluated
	Singular int // Cells skipped with ErrSingularCell
}

// Searcher locates observations in a field store. It is read-only after
// construction and may be used from several goroutines.
type Searcher struct {
	store  *field.Store
	opts   Options
	adj    *mesh.Adjacency
	cells  []int
	layout *partitions.PartitionLayout
}

// NewSearcher validates opts and prepares the cell adjacency and the worker
// partitioning of the mesh
func NewSearcher(store *field.Store, opts Options) (*Searcher, error) {
	if store == nil || store.Mesh == nil {
		return nil, fmt.Errorf("searcher needs a field store")
	}
	if !(opts.Tolerance > 0) || math.IsInf(opts.Tolerance, 1) {
		return nil, fmt.Errorf("tolerance must be positive and finite, got %v", opts.Tolerance)
	}
	if opts.ProximityLevel < 1 {
		return nil, fmt.Errorf("proximity level must be >= 1, got %d", opts.ProximityLevel)
	}
	if opts.Mode != Absolute && opts.Mode != Relative {
		return nil, fmt.Errorf("invalid cost mode %v", opts.Mode)
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	m := store.Mesh
	layout, err := partitions.NewWorkerLayout(m.NumElements, opts.Workers)
	if err != nil {
		return nil, err
	}
	cells := make([]int, m.NumElements)
	for k := range cells {
		cells[k] = k
	}
	return &Searcher{
		store:  store,
		opts:   opts,
		adj:    m.BuildAdjacency(),
		cells:  cells,
		layout: layout,
	}, nil
}

// Options returns the effective options
func (s *Searcher) Options() Options { return s.opts }

// Adjacency returns the cell graph used by local search
func (s *Searcher) Adjacency() *mesh.Adjacency { return s.adj }

// Global evaluates every cell of the mesh
func (s *Searcher) Global(observed []float64) Result {
	if len(observed) != s.store.NumDetectors() {
		return Result{Cell: -1}
	}
	t := s.search(s.cells, s.layout, observed)
	return s.result(t, observed, true)
}

// Local evaluates the anchor cell and the cells within ProximityLevel
// adjacency hops of it
func (s *Searcher) Local(observed []float64, anchor int) Result {
	if len(observed) != s.store.NumDetectors() {
		return Result{Cell: -1}
	}
	cells := mesh.Cells(s.adj.Neighborhood(anchor, s.opts.ProximityLevel))
	var layout *partitions.PartitionLayout
	if s.opts.Workers > 1 && len(cells) >= minParallelCells {
		layout, _ = partitions.NewWorkerLayout(len(cells), s.opts.Workers)
	}
	t := s.search(cells, layout, observed)
	return s.result(t, observed, false)
}

type candidate struct {
	cell      int
	ref       []float64
	last      float64
	violation float64
	cost      float64
}

// tracker holds the best accepted cell and the least violating cell seen by
// one worker. Both comparisons break ties on the lower cell index, which
// makes the outcome independent of visiting and merge order.
type tracker struct {
	best, nearest      candidate
	found, hasNearest  bool
	examined, singular int
}

func (t *tracker) offerAccepted(c candidate) {
	if !t.found || c.cost < t.best.cost || (c.cost == t.best.cost && c.cell < t.best.cell) {
		t.best, t.found = c, true
	}
}

func (t *tracker) offerRejected(c candidate) {
	if !t.hasNearest || c.violation < t.nearest.violation ||
		(c.violation == t.nearest.violation && c.cell < t.nearest.cell) {
		t.nearest, t.hasNearest = c, true
	}
}

func (t *tracker) merge(o *tracker) {
	t.examined += o.examined
	t.singular += o.singular
	if o.found {
		t.offerAccepted(o.best)
	}
	if o.hasNearest {
		t.offerRejected(o.nearest)
	}
}

// search evaluates cells, split by layout over positions in cells when layout
// is not nil
func (s *Searcher) search(cells []int, layout *partitions.PartitionLayout, observed []float64) *tracker {
	if layout == nil || layout.NumPartitions == 1 {
		t := &tracker{}
		s.scan(t, cells, observed)
		return t
	}
	parts := make([]tracker, layout.NumPartitions)
	var g errgroup.Group
	for i, part := range layout.Partitions {
		sub := make([]int, len(part.Elements))
		for j, pos := range part.Elements {
			sub[j] = cells[pos]
		}
		g.Go(func() error {
			s.scan(&parts[i], sub, observed)
			return nil
		})
	}
	_ = g.Wait()
	t := &tracker{}
	for i := range parts {
		t.merge(&parts[i])
	}
	return t
}

func (s *Searcher) scan(t *tracker, cells []int, observed []float64) {
	var vc [][]float64
	for _, k := range cells {
		t.examined++
		vc = s.store.VertexCounts(k, vc)
		ref, err := SolveCell(vc, observed, s.opts.Mode)
		if err != nil {
			t.singular++
			continue
		}
		last := element.Last(ref)
		c := candidate{cell: k, ref: ref, last: last, violation: Violation(ref, last)}
		if Accepted(c.violation, s.opts.Tolerance) {
			c.cost = Cost(vc, ref, last, observed, s.opts.Mode)
			if costIsFinite(c.cost) {
				t.offerAccepted(c)
				continue
			}
		}
		t.offerRejected(c)
	}
}

func (s *Searcher) result(t *tracker, observed []float64, bestEffort bool) Result {
	r := Result{Cell: -1, Examined: t.examined, Singular: t.singular}
	var c candidate
	switch {
	case t.found:
		c, r.Found = t.best, true
	case bestEffort && t.hasNearest:
		c = t.nearest
		vc := s.store.VertexCounts(c.cell, nil)
		c.cost = Cost(vc, c.ref, c.last, observed, s.opts.Mode)
	default:
		return r
	}
	r.Defined = true
	r.Cell = c.cell
	r.Reference = c.ref
	r.Violation = c.violation
	r.Cost = c.cost
	r.Position = element.ToPhysical(s.store.Mesh.CellVertices(c.cell, nil), c.ref)
	return r
}
