package locate

import "math"

// Violation measures how far reference coordinates lie outside the closed
// simplex. Each explicit coordinate and the implicit last one contributes its
// distance outside [0,1]; the result is the sum of the squared contributions
// and is zero iff the point is inside. NaN coordinates give +Inf.
func Violation(ref []float64, last float64) float64 {
	v := excess(last)
	for _, x := range ref {
		v += excess(x)
	}
	return v
}

func excess(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return math.Inf(1)
	case x > 1:
		return (x - 1) * (x - 1)
	case x < 0:
		return x * x
	}
	return 0
}

// Accepted reports whether a violation passes the tolerance, strictly
func Accepted(violation, tol float64) bool { return violation < tol }
