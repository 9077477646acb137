//go:build !fastmath

package levels

import "math"

// sqrt is the accurate default implementation used by Estimate.
func sqrt(x float64) float64 {
	return math.Sqrt(x)
}
