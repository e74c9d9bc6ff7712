package common

import (
	"math"
)

// ParabolicOffset fits a parabola through (-1, y0), (0, y1), (1, y2) and returns the
// vertex position relative to the middle sample.
//
// ok is false when the fit is degenerate (flat or non-finite) or the vertex falls a full
// sample or more away from the middle; callers then keep the integer position.
func ParabolicOffset(y0, y1, y2 float64) (offset float64, ok bool) {
	denominator := 2 * (2*y1 - y2 - y0)
	p := (y2 - y0) / denominator
	if math.IsNaN(p) || math.IsInf(p, 0) || math.Abs(p) >= 1 {
		return 0, false
	}
	return p, true
}
