package locate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/notargets/RPTKernel/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// scriptedSearcher replays canned results and records every call
type scriptedSearcher struct {
	global []Result
	local  []Result
	calls  []string
}

func (s *scriptedSearcher) Global(observed []float64) Result {
	s.calls = append(s.calls, "global")
	r := s.global[0]
	s.global = s.global[1:]
	return r
}

func (s *scriptedSearcher) Local(observed []float64, anchor int) Result {
	s.calls = append(s.calls, fmt.Sprintf("local:%d", anchor))
	r := s.local[0]
	s.local = s.local[1:]
	return r
}

func found(cell int, x float64) Result {
	return Result{Found: true, Defined: true, Cell: cell, Position: r3.Vec{X: x}, Cost: 0.5}
}

var notFound = Result{Cell: -1}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("local-first")
	require.NoError(t, err)
	assert.Equal(t, LocalFirst, p)
	p, err = ParsePolicy("GLOBAL_ONLY")
	require.NoError(t, err)
	assert.Equal(t, GlobalOnly, p)
	_, err = ParsePolicy("nearest")
	assert.Error(t, err)
	assert.Equal(t, "local_first", LocalFirst.String())
}

func TestDriverLocalFailureFallsBackToGlobal(t *testing.T) {
	fake := &scriptedSearcher{
		global: []Result{found(5, 1), found(9, 2)},
		local:  []Result{notFound, found(10, 3)},
	}
	d := NewDriver(fake, LocalFirst, 2, 3, nil)

	traj, err := d.Run(context.Background(), [][]float64{{1, 1}, {2, 2}, {3, 3}})
	require.NoError(t, err)

	want := []Entry{
		{Index: 0, Search: SearchGlobal, Found: true, Defined: true, Position: r3.Vec{X: 1}, Cost: 0.5, Cell: 5},
		{Index: 1, Search: SearchGlobal, Fallback: true, Found: true, Defined: true, Position: r3.Vec{X: 2}, Cost: 0.5, Cell: 9},
		{Index: 2, Search: SearchLocal, Found: true, Defined: true, Position: r3.Vec{X: 3}, Cost: 0.5, Cell: 10},
	}
	if diff := cmp.Diff(want, traj.Entries); diff != "" {
		t.Errorf("trajectory mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"global", "local:5", "global", "local:9"}, fake.calls)
	assert.Equal(t, 3, traj.Found())
	assert.Equal(t, 3, traj.Dim)
}

func TestDriverGlobalFailureDropsAnchor(t *testing.T) {
	undefined := Result{Cell: -1}
	bestEffort := Result{Defined: true, Cell: 2, Position: r3.Vec{Y: 7}, Cost: 9}
	fake := &scriptedSearcher{
		global: []Result{found(1, 0), undefined, bestEffort, found(4, 0)},
		local:  []Result{notFound},
	}
	d := NewDriver(fake, LocalFirst, 1, 3, nil)

	traj, err := d.Run(context.Background(), [][]float64{{1}, {2}, {3}, {4}})
	require.NoError(t, err)
	require.Equal(t, 4, traj.Len())

	// Local is tried only while an anchor is held
	assert.Equal(t, []string{"global", "local:1", "global", "global", "global"}, fake.calls)

	e := traj.Entries[1]
	assert.False(t, e.Found)
	assert.False(t, e.Defined)
	assert.True(t, e.Fallback)

	e = traj.Entries[2]
	assert.False(t, e.Found)
	assert.True(t, e.Defined)
	assert.False(t, e.Fallback)
	assert.Equal(t, 7.0, e.Position.Y)
	for i, e := range traj.Entries {
		assert.Equal(t, i, e.Index)
	}
}

func TestDriverGlobalOnly(t *testing.T) {
	fake := &scriptedSearcher{global: []Result{found(1, 0), found(1, 0), found(2, 0)}}
	d := NewDriver(fake, GlobalOnly, 1, 2, nil)
	traj, err := d.Run(context.Background(), [][]float64{{1}, {1}, {2}})
	require.NoError(t, err)
	assert.Equal(t, 3, traj.Len())
	assert.Equal(t, []string{"global", "global", "global"}, fake.calls)
}

func TestDriverStepContinuation(t *testing.T) {
	fake := &scriptedSearcher{
		global: []Result{found(3, 0)},
		local:  []Result{found(4, 0)},
	}
	d := NewDriver(fake, LocalFirst, 1, 3, nil)

	e, next := d.Step(NoAnchor, []float64{1})
	assert.Equal(t, SearchGlobal, e.Search)
	assert.Equal(t, Anchor{State: StateHaveAnchor, Cell: 3}, next)

	e, next = d.Step(next, []float64{1})
	assert.Equal(t, SearchLocal, e.Search)
	assert.Equal(t, Anchor{State: StateHaveAnchor, Cell: 4}, next)
	assert.Equal(t, "have_anchor", next.State.String())
}

func TestDriverRejectsMalformedObservation(t *testing.T) {
	fake := &scriptedSearcher{}
	d := NewDriver(fake, LocalFirst, 2, 3, nil)

	traj, err := d.Run(context.Background(), [][]float64{{1, 2}, {1, 2, 3}})
	assert.Nil(t, traj)
	var oe *ObservationError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, 1, oe.Index)
	assert.Equal(t, 3, oe.Got)
	assert.Equal(t, 2, oe.Want)
	assert.Empty(t, fake.calls, "no search before validation")
}

func TestDriverCancelled(t *testing.T) {
	fake := &scriptedSearcher{}
	d := NewDriver(fake, GlobalOnly, 1, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	traj, err := d.Run(ctx, [][]float64{{1}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, traj.Len())
}

func TestTrajectoryAppendOrder(t *testing.T) {
	var traj Trajectory
	require.NoError(t, traj.Append(Entry{Index: 0}))
	assert.Error(t, traj.Append(Entry{Index: 0}), "duplicate")
	assert.Error(t, traj.Append(Entry{Index: 2}), "gap")
	assert.Equal(t, 1, traj.Len())
}

func TestDriverEndToEnd(t *testing.T) {
	s := linearStore(t, 4)
	sr, err := NewSearcher(s, Options{Mode: Absolute, Tolerance: 1e-9, ProximityLevel: 1, Workers: 2})
	require.NoError(t, err)

	var logs bytes.Buffer
	logger, err := utils.NewLogger("info", "text", &logs)
	require.NoError(t, err)
	d := NewDriver(sr, LocalFirst, 3, 3, logger)
	d.SetVerbose(true)

	path := []r3.Vec{
		{X: 0.30, Y: 0.60, Z: 0.45},
		{X: 0.32, Y: 0.61, Z: 0.44},
		{X: 0.35, Y: 0.62, Z: 0.43},
		{X: 0.95, Y: 0.05, Z: 0.90}, // jump beyond the neighborhood
		{X: 0.94, Y: 0.06, Z: 0.91},
	}
	obs := make([][]float64, len(path))
	for i, p := range path {
		obs[i] = observe(p)
	}
	traj, err := d.Run(context.Background(), obs)
	require.NoError(t, err)
	require.Equal(t, len(path), traj.Len())

	for i, e := range traj.Entries {
		require.True(t, e.Found, "observation %d", i)
		assert.InDelta(t, 0, r3.Norm(r3.Sub(path[i], e.Position)), 1e-9, "observation %d", i)
	}
	assert.Equal(t, SearchGlobal, traj.Entries[0].Search)
	assert.Equal(t, SearchLocal, traj.Entries[1].Search)
	assert.Equal(t, SearchGlobal, traj.Entries[3].Search)
	assert.True(t, traj.Entries[3].Fallback)
	assert.Equal(t, SearchLocal, traj.Entries[4].Search)
	assert.Contains(t, logs.String(), "trajectory reconstructed")
}
