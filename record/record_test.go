package record

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/notargets/RPTKernel/locate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func sampleTrajectory() *locate.Trajectory {
	return &locate.Trajectory{Dim: 3, Entries: []locate.Entry{
		{Index: 0, Search: locate.SearchGlobal, Found: true, Defined: true, Position: r3.Vec{X: 0.5, Y: 0.25, Z: 1}, Cost: 1e-12, Cell: 4},
		{Index: 1, Search: locate.SearchGlobal, Fallback: true, Cell: -1},
		{Index: 2, Search: locate.SearchLocal, Found: true, Defined: true, Position: r3.Vec{X: 0.75, Y: 0.5, Z: 0.125}, Cost: 2e-12, Cell: 7},
	}}
}

func TestReadMeasurements(t *testing.T) {
	in := `# time series
detector_00, detector_01
10, 20
11 21

12	22
`
	obs, err := ReadMeasurements(strings.NewReader(in), 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{10, 20}, {11, 21}, {12, 22}}, obs)

	_, err = ReadMeasurements(strings.NewReader("1,2\n3,4,5\n"), 2)
	var re *RowError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, RowError{Line: 2, Got: 3, Want: 2}, *re)

	_, err = ReadMeasurements(strings.NewReader("1,2\n3,four\n"), 2)
	assert.ErrorContains(t, err, "line 2")

	// Only the first row may be a header
	_, err = ReadMeasurements(strings.NewReader("1,2\na,b\n"), 2)
	assert.Error(t, err)

	// A malformed first data row is fatal, not taken for a header
	obs, err = ReadMeasurements(strings.NewReader("15x,10\n16,11\n17,12\n"), 2)
	assert.ErrorContains(t, err, `line 1: bad count "15x"`)
	assert.Nil(t, obs)

	_, err = ReadMeasurements(strings.NewReader("# header follows\n\nt,15x\n16,11\n"), 2)
	assert.NoError(t, err, "no numeric column makes a header")

	_, err = ReadMeasurements(strings.NewReader("1\n"), 0)
	assert.Error(t, err)
}

func TestReadMeasurementsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counts.txt")
	require.NoError(t, os.WriteFile(path, []byte("1 2 3\n4 5\n"), 0o644))
	_, err := ReadMeasurementsFile(path, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
	var re *RowError
	assert.True(t, errors.As(err, &re))

	_, err = ReadMeasurementsFile(filepath.Join(t.TempDir(), "missing"), 3)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPositionsPath(t *testing.T) {
	for in, want := range map[string]string{
		"positions":     "positions.csv",
		"positions.csv": "positions.csv",
		"out/track.dat": "out/track.dat",
		"track.DAT":     "track.DAT",
		"track.txt":     "track.txt.csv",
	} {
		assert.Equal(t, want, PositionsPath(in), in)
	}
	assert.Equal(t, " ", Separator("a.dat"))
	assert.Equal(t, ",", Separator("a.csv"))
}

func TestWriteTrajectory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTrajectory(&buf, sampleTrajectory(), 3, ","))
	want := "position_x,position_y,position_z\n" +
		"0.5,0.25,1\n" +
		"NaN,NaN,NaN\n" +
		"0.75,0.5,0.125\n"
	assert.Equal(t, want, buf.String())

	buf.Reset()
	require.NoError(t, WriteTrajectory(&buf, sampleTrajectory(), 2, " "))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "position_x position_y", lines[0])
	assert.Equal(t, "0.75 0.5", lines[3])

	assert.Error(t, WriteTrajectory(&buf, sampleTrajectory(), 4, ","))
}

func TestExportTrajectory(t *testing.T) {
	dir := t.TempDir()
	path, err := ExportTrajectory(filepath.Join(dir, "run", "positions"), sampleTrajectory())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run", "positions.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 4)

	path, err = ExportTrajectory(filepath.Join(dir, "positions.dat"), sampleTrajectory())
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "position_x position_y position_z\n"))
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	sink, err := OpenSQLite(filepath.Join(t.TempDir(), "positions.db"))
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	runID := uuid.NewString()
	traj := sampleTrajectory()
	require.NoError(t, sink.Write(ctx, runID, traj))

	back, err := sink.Trajectory(ctx, runID)
	require.NoError(t, err)
	if diff := cmp.Diff(traj, back); diff != "" {
		t.Errorf("stored trajectory differs (-want +got):\n%s", diff)
	}

	// Run ids are unique
	assert.Error(t, sink.Write(ctx, runID, traj))
	_, err = sink.Trajectory(ctx, uuid.NewString())
	assert.Error(t, err)
}

func TestPlotTrajectory(t *testing.T) {
	dir := t.TempDir()
	files, err := PlotTrajectory(filepath.Join(dir, "track.png"), sampleTrajectory())
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "track_xy.png"), filepath.Join(dir, "track_xz.png")}, files)
	for _, f := range files {
		st, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, st.Size(), int64(0))
	}

	empty := &locate.Trajectory{Dim: 2, Entries: []locate.Entry{{Cell: -1, Position: r3.Vec{X: math.NaN()}}}}
	_, err = PlotTrajectory(filepath.Join(dir, "none.png"), empty)
	assert.Error(t, err)
}
