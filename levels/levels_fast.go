//go:build fastmath

package levels

import approx "github.com/meko-christian/algo-approx"

// sqrt is the fast-math approximation used by Estimate when the
// fastmath build tag is set, trading a little accuracy for speed.
func sqrt(x float64) float64 {
	return approx.FastSqrt(x)
}
