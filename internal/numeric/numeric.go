// Package numeric holds the small numeric helpers shared by the pricing,
// margin and metrics packages.
package numeric

import (
	"math"

	"github.com/shopspring/decimal"
)

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Round rounds half up toward +Inf, so Round(-2.5) == -2.
// Currency figures use this everywhere to keep loss and profit rounding symmetric
// with the dashboard that displays them.
func Round(v float64) float64 {
	if !IsFinite(v) {
		return v
	}
	return math.Floor(v + 0.5)
}

// Round2 rounds to two decimals, half away from zero
func Round2(v float64) float64 {
	if !IsFinite(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// ZeroCrossing returns the x where the line through (x0,y0) and (x1,y1) meets zero.
// The caller guarantees y0 != y1.
func ZeroCrossing(x0, y0, x1, y1 float64) float64 {
	t := -y0 / (y1 - y0)
	return x0 + t*(x1-x0)
}

// Clamp limits v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
