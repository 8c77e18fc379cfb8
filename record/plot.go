package record

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/notargets/RPTKernel/locate"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotTrajectory renders the defined positions of a trajectory as line plots
// of Y and, for 3D, Z against X. The projections are written next to path
// with _xy and _xz suffixes; the written files are returned.
func PlotTrajectory(path string, traj *locate.Trajectory) ([]string, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".png"
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))

	xy := make(plotter.XYs, 0, traj.Len())
	xz := make(plotter.XYs, 0, traj.Len())
	for _, e := range traj.Entries {
		if !e.Defined {
			continue
		}
		xy = append(xy, plotter.XY{X: e.Position.X, Y: e.Position.Y})
		xz = append(xz, plotter.XY{X: e.Position.X, Y: e.Position.Z})
	}
	if len(xy) == 0 {
		return nil, fmt.Errorf("trajectory has no defined positions to plot")
	}

	views := []struct {
		suffix, ylabel string
		pts            plotter.XYs
	}{
		{"_xy", "y", xy},
		{"_xz", "z", xz},
	}
	if traj.Dim < 3 {
		views = views[:1]
	}

	var written []string
	for _, v := range views {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Tracer trajectory (%d samples)", len(v.pts))
		p.X.Label.Text = "x"
		p.Y.Label.Text = v.ylabel

		line, points, err := plotter.NewLinePoints(v.pts)
		if err != nil {
			return written, err
		}
		line.Width = vg.Points(1)
		points.Radius = vg.Points(1.5)
		p.Add(line, points)

		file := base + v.suffix + ext
		if err = p.Save(8*vg.Inch, 6*vg.Inch, file); err != nil {
			return written, fmt.Errorf("save %s: %w", file, err)
		}
		written = append(written, file)
	}
	return written, nil
}
