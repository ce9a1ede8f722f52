package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// Unbounded is the starting point for intersecting extents.
var Unbounded = orb.Bound{
	Min: orb.Point{-math.MaxFloat64, -math.MaxFloat64},
	Max: orb.Point{math.MaxFloat64, math.MaxFloat64},
}

// Intersect returns the overlap of a and b. The second result is false when
// the overlap is empty; the returned bound is then inverted on some axis.
func Intersect(a, b orb.Bound) (orb.Bound, bool) {
	out := orb.Bound{
		Min: orb.Point{math.Max(a.Min[0], b.Min[0]), math.Max(a.Min[1], b.Min[1])},
		Max: orb.Point{math.Min(a.Max[0], b.Max[0]), math.Min(a.Max[1], b.Max[1])},
	}
	return out, out.Min[0] <= out.Max[0] && out.Min[1] <= out.Max[1]
}
