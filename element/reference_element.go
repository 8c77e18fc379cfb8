package element

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Reference coordinates locate a point inside a simplex relative to its pivot
// vertex 0. For a dim-simplex there are dim explicit coordinates (ξ, η, ζ);
// the weight of the pivot is the implicit last coordinate 1 - ξ - η - ζ.
//
// A point lies in the closed simplex iff every explicit coordinate and the
// implicit one is in [0,1].

// Last returns the implicit coordinate 1 - Σ ref
func Last(ref []float64) float64 {
	return 1 - floats.Sum(ref)
}

// Interpolate evaluates the linear interpolant of vertex values at ref.
// values[0] belongs to the pivot vertex and is weighted by last.
func Interpolate(values, ref []float64, last float64) float64 {
	v := last * values[0]
	for i, xi := range ref {
		v += xi * values[i+1]
	}
	return v
}

// ToPhysical maps reference coordinates to physical space
//
//	x = v0 + Σ_i ref_i (v_{i+1} - v0)
func ToPhysical(verts []r3.Vec, ref []float64) r3.Vec {
	x := verts[0]
	for i, xi := range ref {
		x = r3.Add(x, r3.Scale(xi, r3.Sub(verts[i+1], verts[0])))
	}
	return x
}

// IsFinite reports whether every coordinate is a finite number
func IsFinite(ref []float64) bool {
	for _, x := range ref {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
