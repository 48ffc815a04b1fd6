package pricing

import (
	"math"

	"github.com/rzzdr/options-risk-engine/pkg/models"
)

const (
	ivLowerBound = 1e-4
	ivUpperBound = 5.0
	ivInitial    = 0.2
	ivTolerance  = 1e-8
	ivMaxIter    = 100
)

// ImpliedVolatility solves Black76 for the volatility that reproduces price.
// Newton steps are used while they stay inside the bracket, bisection otherwise.
// ok is false when the price lies outside the range reachable by the model.
func ImpliedVolatility(optType models.OptionType, price, forward, strike, years, rate float64) (float64, bool) {
	if !(price > 0) || !(forward > 0) || !(strike > 0) {
		return 0, false
	}

	in := Input{Type: optType, Forward: forward, Strike: strike, Years: years, Rate: rate}
	priceAt := func(vol float64) float64 {
		in.Volatility = vol
		return Black76(in)
	}

	lo, hi := ivLowerBound, ivUpperBound
	if price < priceAt(lo) || price > priceAt(hi) {
		return 0, false
	}

	t := math.Max(years, MinTimeToExpiry)
	df := math.Exp(-rate * t)
	sqrtT := math.Sqrt(t)

	sigma := ivInitial
	diff := math.Inf(1)
	for i := 0; i < ivMaxIter; i++ {
		diff = priceAt(sigma) - price
		if math.Abs(diff) < ivTolerance {
			return sigma, true
		}
		if diff > 0 {
			hi = sigma
		} else {
			lo = sigma
		}

		d1, _ := d1d2(forward, strike, sigma*sqrtT)
		vega := forward * df * NormPDF(d1) * sqrtT

		next := sigma - diff/vega
		if vega < 1e-12 || !(next > lo && next < hi) {
			next = (lo + hi) / 2
		}
		sigma = next
	}

	return sigma, math.Abs(diff) < 1e-6
}
