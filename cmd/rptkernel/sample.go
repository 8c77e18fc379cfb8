package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/notargets/RPTKernel/element"
	"github.com/notargets/RPTKernel/field"
	"github.com/notargets/RPTKernel/mesh"
	"github.com/notargets/RPTKernel/mesh/readers"
	"gonum.org/v1/gonum/spatial/r3"
)

// Synthetic detector parameters
const (
	SourceStrength = 1e6 // Count rate at zero distance
	RingScale      = 1.5 // Detector ring radius over the mesh half extent
)

// Default box
const (
	BoxCells = "4,4,8"
	BoxLo    = "0,0,0"
	BoxHi    = "1,1,2"
)

func runSample(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fset, cfgPath := newFlagSet("sample", stderr)
	meshPath := fset.String("mesh", "", "gmsh mesh file (a box mesh when empty)")
	dim := fset.Int("dim", 3, "box dimension, 2 or 3")
	cells := fset.String("box", BoxCells, "box subdivisions nx,ny,nz")
	lo := fset.String("lo", BoxLo, "box lower corner x,y,z")
	hi := fset.String("hi", BoxHi, "box upper corner x,y,z")
	steps := fset.Int("trace", 0, "also write this many synthetic measurements to the configured measurements file")
	if err := fset.Parse(args); err != nil {
		return err
	}
	s, err := loadSetup(*cfgPath, stderr)
	if err != nil {
		return err
	}

	var m *mesh.Mesh
	if *meshPath != "" {
		m, err = readers.ReadMeshFile(*meshPath)
	} else {
		m, err = boxMesh(*dim, *cells, *lo, *hi)
	}
	if err != nil {
		return err
	}
	s.logger.Info("mesh ready", "mesh", m.String())

	models := ringModels(m, s.cfg.Detectors)
	fs, err := field.Sample(ctx, m, models, s.cfg.Workers)
	if err != nil {
		return err
	}
	mgr, err := s.cfg.Manager(s.logger)
	if err != nil {
		return err
	}
	man, err := mgr.Save(ctx, fs)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "checkpoint %s: %d detectors, %d nodes, %d cells\n", man.RunID, man.Detectors, man.Nodes, man.Cells)

	if *steps > 0 {
		if err = writeTrace(s.cfg.Measurements, m, models, *steps); err != nil {
			return err
		}
		s.logger.Info("synthetic measurements written", "path", s.cfg.Measurements, "rows", *steps)
	}
	return nil
}

func boxMesh(dim int, cells, lo, hi string) (*mesh.Mesh, error) {
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("box dimension must be 2 or 3, got %d", dim)
	}
	parts := strings.Split(cells, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%q: want nx,ny,nz", cells)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", cells, err)
		}
		n[i] = v
	}
	l, err := parseFloats(lo, 3)
	if err != nil {
		return nil, err
	}
	h, err := parseFloats(hi, 3)
	if err != nil {
		return nil, err
	}
	return mesh.NewBox(element.Dimensionality(dim), n,
		r3.Vec{X: l[0], Y: l[1], Z: l[2]}, r3.Vec{X: h[0], Y: h[1], Z: h[2]})
}

// ringModels places the detectors on a ring around the mesh, staggered in
// height for 3D meshes, each seeing an inverse-square-like count rate
func ringModels(m *mesh.Mesh, detectors int) []field.CountModel {
	lo, hi := m.Bounds()
	center := r3.Scale(0.5, r3.Add(lo, hi))
	ext := r3.Sub(hi, lo)
	radius := RingScale * 0.5 * math.Max(ext.X, ext.Y)
	if radius == 0 {
		radius = 1
	}

	models := make([]field.CountModel, detectors)
	for d := range models {
		theta := 2 * math.Pi * float64(d) / float64(detectors)
		src := r3.Vec{
			X: center.X + radius*math.Cos(theta),
			Y: center.Y + radius*math.Sin(theta),
		}
		if m.Dim == element.D3 {
			src.Z = lo.Z + ext.Z*(float64(d)+0.5)/float64(detectors)
		}
		models[d] = field.CountFunc(func(p r3.Vec) float64 {
			return SourceStrength / (1 + r3.Norm2(r3.Sub(p, src))/(radius*radius))
		})
	}
	return models
}

// writeTrace writes the model counts along the diagonal between the quarter
// and three-quarter points of the mesh bounds
func writeTrace(path string, m *mesh.Mesh, models []field.CountModel, steps int) error {
	if err := mkdirFor(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	lo, hi := m.Bounds()
	from := r3.Add(lo, r3.Scale(0.25, r3.Sub(hi, lo)))
	to := r3.Add(lo, r3.Scale(0.75, r3.Sub(hi, lo)))

	header := make([]string, len(models))
	for d := range header {
		header[d] = fmt.Sprintf("detector_%02d", d)
	}
	fmt.Fprintln(f, strings.Join(header, ","))
	row := make([]string, len(models))
	for i := 0; i < steps; i++ {
		t := 0.0
		if steps > 1 {
			t = float64(i) / float64(steps-1)
		}
		p := r3.Add(from, r3.Scale(t, r3.Sub(to, from)))
		for d, model := range models {
			row[d] = strconv.FormatFloat(model.Count(p), 'g', -1, 64)
		}
		fmt.Fprintln(f, strings.Join(row, ","))
	}
	return f.Close()
}
