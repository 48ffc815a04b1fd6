package strategy

import (
	"math"
	"sort"

	"github.com/rzzdr/options-risk-engine/internal/numeric"
	"github.com/rzzdr/options-risk-engine/pkg/models"
)

// payoffs with a smaller magnitude count as zero
const zeroPayoff = 1e-6

// Breakevens returns the spot levels where a curve sorted by At crosses zero,
// rounded to two decimals, deduplicated and ascending
func Breakevens(sorted []models.PayoffPoint) []float64 {
	var raw []float64
	for i := 1; i < len(sorted); i++ {
		p0, p1 := sorted[i-1], sorted[i]
		y0, y1 := p0.Payoff, p1.Payoff
		if !numeric.IsFinite(y0) || !numeric.IsFinite(y1) {
			continue
		}
		if math.Abs(y0) < zeroPayoff {
			raw = append(raw, p0.At)
		}
		if y0 == 0 || y1 == 0 {
			continue
		}
		if (y0 < 0 && y1 > 0) || (y0 > 0 && y1 < 0) {
			raw = append(raw, numeric.ZeroCrossing(p0.At, y0, p1.At, y1))
		}
	}
	if n := len(sorted); n > 0 {
		last := sorted[n-1]
		if numeric.IsFinite(last.Payoff) && math.Abs(last.Payoff) < zeroPayoff {
			raw = append(raw, last.At)
		}
	}

	seen := make(map[float64]struct{}, len(raw))
	out := make([]float64, 0, len(raw))
	for _, x := range raw {
		r := numeric.Round2(x)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Float64s(out)
	return out
}
