package record

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/notargets/RPTKernel/locate"
)

// PositionsPath appends ".csv" unless name already ends in .csv or .dat
func PositionsPath(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".dat":
		return name
	}
	return name + ".csv"
}

// Separator returns the column separator used for path: a space for .dat,
// a comma otherwise
func Separator(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".dat") {
		return " "
	}
	return ","
}

// WriteTrajectory writes a header and one row of dim coordinates per entry.
// Entries without a defined position are written as NaN.
func WriteTrajectory(w io.Writer, traj *locate.Trajectory, dim int, sep string) error {
	if dim < 2 || dim > 3 {
		return fmt.Errorf("trajectory dimension %d, want 2 or 3", dim)
	}
	bw := bufio.NewWriter(w)
	header := []string{"position_x", "position_y", "position_z"}[:dim]
	bw.WriteString(strings.Join(header, sep) + "\n")

	row := make([]string, dim)
	for _, e := range traj.Entries {
		xyz := [3]float64{math.NaN(), math.NaN(), math.NaN()}
		if e.Defined {
			xyz = [3]float64{e.Position.X, e.Position.Y, e.Position.Z}
		}
		for i := range row {
			row[i] = strconv.FormatFloat(xyz[i], 'g', -1, 64)
		}
		bw.WriteString(strings.Join(row, sep) + "\n")
	}
	return bw.Flush()
}

// ExportTrajectory writes the trajectory to PositionsPath(name) and returns
// the path written
func ExportTrajectory(name string, traj *locate.Trajectory) (string, error) {
	path := PositionsPath(name)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err = WriteTrajectory(f, traj, traj.Dim, Separator(path)); err != nil {
		f.Close()
		return "", fmt.Errorf("export %s: %w", path, err)
	}
	return path, f.Close()
}
