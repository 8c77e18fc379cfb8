package locate

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/notargets/RPTKernel/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCostMode(t *testing.T) {
	for in, want := range map[string]CostMode{
		"absolute": Absolute,
		"Relative": Relative,
		" abs ":    Absolute,
	} {
		got, err := ParseCostMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCostMode("squared")
	assert.Error(t, err)
	assert.Equal(t, "relative", Relative.String())
}

func TestCostNonNegativeAndZeroAtInteriorPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		nodal := make([][]float64, 3)
		for d := range nodal {
			nodal[d] = []float64{rng.Float64() * 100, rng.Float64() * 100, rng.Float64() * 100, rng.Float64() * 100}
		}
		ref := []float64{0.2, 0.3, 0.1}
		last := element.Last(ref)
		exact := make([]float64, len(nodal))
		for d, c := range nodal {
			exact[d] = element.Interpolate(c, ref, last)
		}
		for _, mode := range []CostMode{Absolute, Relative} {
			assert.InDelta(t, 0, Cost(nodal, ref, last, exact, mode), 1e-20)

			other := []float64{rng.Float64()*50 + 1, rng.Float64()*50 + 1, rng.Float64()*50 + 1}
			if c := Cost(nodal, ref, last, other, mode); c < 0 {
				t.Errorf("trial %d %v: negative cost %v", trial, mode, c)
			}
		}
	}
}

func TestCostRelativeWeighting(t *testing.T) {
	nodal := [][]float64{{4, 4, 4}, {10, 10, 10}}
	ref := []float64{0.5, 0.25}
	last := element.Last(ref)
	// residuals 2 and 5
	obs := []float64{2, 5}
	assert.InDelta(t, 4+25, Cost(nodal, ref, last, obs, Absolute), 1e-12)
	assert.InDelta(t, 4.0/4+25.0/25, Cost(nodal, ref, last, obs, Relative), 1e-12)
}

func TestSolveCellRecoversReference(t *testing.T) {
	// One detector per explicit coordinate, offset to keep relative weights finite
	nodal := [][]float64{
		{10, 11, 10, 10},
		{10, 10, 11, 10},
		{10, 10, 10, 11},
	}
	want := []float64{0.2, 0.3, 0.1}
	last := element.Last(want)
	obs := make([]float64, 3)
	for d, c := range nodal {
		obs[d] = element.Interpolate(c, want, last)
	}
	for _, mode := range []CostMode{Absolute, Relative} {
		ref, err := SolveCell(nodal, obs, mode)
		require.NoError(t, err)
		assert.InDeltaSlicef(t, want, ref, 1e-10, "mode %v", mode)
	}
}

func TestSolveCellTwoDetectorsSingleTet(t *testing.T) {
	nodal := [][]float64{
		{10, 20, 20, 20},
		{5, 5, 15, 15},
	}
	obs := []float64{15, 10}

	ref, err := SolveCell(nodal, obs, Absolute)
	require.NoError(t, err)
	require.Len(t, ref, 3)
	last := element.Last(ref)
	for _, x := range append(append([]float64{}, ref...), last) {
		assert.GreaterOrEqual(t, x, -1e-9)
		assert.LessOrEqual(t, x, 1+1e-9)
	}
	assert.InDelta(t, 1, floatsSum(ref)+last, 1e-12)
	assert.InDelta(t, 0, Violation(ref, last), 1e-12)

	for d, c := range nodal {
		assert.InDelta(t, obs[d], element.Interpolate(c, ref, last), 1e-9)
	}
	// Minimum norm picks the symmetric point
	assert.InDeltaSlice(t, []float64{0, 0.25, 0.25}, ref, 1e-9)
}

func TestSolveCellSingular(t *testing.T) {
	// Constant fields carry no position information
	_, err := SolveCell([][]float64{{3, 3, 3, 3}, {7, 7, 7, 7}}, []float64{3, 7}, Absolute)
	assert.True(t, errors.Is(err, ErrSingularCell))

	// A zero observation makes the relative weight infinite
	_, err = SolveCell([][]float64{{0, 1, 0, 0}}, []float64{0}, Relative)
	assert.ErrorIs(t, err, ErrSingularCell)

	_, err = SolveCell([][]float64{{0, 1, 0, 0}}, []float64{1, 2}, Absolute)
	assert.Error(t, err)
}

func TestSolveCellTriangle(t *testing.T) {
	nodal := [][]float64{{0, 2, 0}, {1, 1, 4}}
	want := []float64{0.25, 0.5}
	last := element.Last(want)
	obs := []float64{element.Interpolate(nodal[0], want, last), element.Interpolate(nodal[1], want, last)}
	ref, err := SolveCell(nodal, obs, Absolute)
	require.NoError(t, err)
	assert.InDeltaSlice(t, want, ref, 1e-12)
}

func TestViolation(t *testing.T) {
	q := []float64{0.25, 0.25, 0.25}
	assert.Equal(t, 0.0, Violation(q, element.Last(q)))

	out := []float64{1.5, 0, 0}
	v := Violation(out, element.Last(out))
	assert.Greater(t, v, 0.0)
	// 0.5 above on ξ and 0.5 below on the implicit coordinate
	assert.InDelta(t, 0.5, v, 1e-15)

	assert.Equal(t, 0.0, Violation([]float64{0, 1, 0}, 0))
	assert.True(t, math.IsInf(Violation([]float64{math.NaN(), 0, 0}, 0), 1))

	assert.True(t, Accepted(0, 1e-3))
	assert.False(t, Accepted(1e-3, 1e-3))
}

func floatsSum(x []float64) (s float64) {
	for _, v := range x {
		s += v
	}
	return
}
