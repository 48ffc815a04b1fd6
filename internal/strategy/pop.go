package strategy

import (
	"math"
	"time"

	"github.com/rzzdr/options-risk-engine/internal/numeric"
	"github.com/rzzdr/options-risk-engine/internal/payoff"
	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/pkg/models"
)

const neutralPOP = 50.0

// probabilityOfProfit is the lognormal probability, in percent, that spot at
// the latest expiry lands in an interval between breakevens where the legs pay
func (a *Analyzer) probabilityOfProfit(in Input, breakevens []float64) float64 {
	if len(breakevens) == 0 {
		if a.opts.SampledPOPWithoutBreakevens && len(in.Legs) > 0 {
			return sampledPOP(in)
		}
		return neutralPOP
	}
	sigma := averageVolatility(in.Legs)
	if sigma == 0 || !(in.UnderlyingPrice > 0) {
		return neutralPOP
	}

	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = a.opts.Now()
	}
	years := pricing.TimeToExpiry(latestExpiry(in.Legs), asOf)
	probAbove := func(k float64) float64 {
		if k <= 0 {
			return 1
		}
		d2 := (math.Log(in.UnderlyingPrice/k) + (in.RiskFreeRate-0.5*sigma*sigma)*years) / (sigma * math.Sqrt(years))
		return pricing.NormCDF(d2)
	}

	bounds := make([]float64, 0, len(breakevens)+2)
	bounds = append(bounds, math.Inf(-1))
	bounds = append(bounds, breakevens...)
	bounds = append(bounds, math.Inf(1))

	var total float64
	for i := 0; i < len(bounds)-1; i++ {
		lo, hi := bounds[i], bounds[i+1]
		var sample float64
		switch {
		case math.IsInf(lo, -1):
			sample = hi * 0.9
		case math.IsInf(hi, 1):
			sample = lo * 1.1
		default:
			sample = (lo + hi) / 2
		}
		if expiryValue(in.Legs, sample) <= 0 {
			continue
		}

		pLo, pHi := 1.0, 0.0
		if !math.IsInf(lo, -1) {
			pLo = probAbove(lo)
		}
		if !math.IsInf(hi, 1) {
			pHi = probAbove(hi)
		}
		total += pLo - pHi
	}
	return numeric.Clamp(total*100, 0, 100)
}

// sampledPOP decides a curve that never crosses zero by its sign at spot
func sampledPOP(in Input) float64 {
	sample := in.UnderlyingPrice
	if !(sample > 0) {
		sample = 1
	}
	switch v := expiryValue(in.Legs, sample); {
	case v > 0:
		return 100
	case v < 0:
		return 0
	default:
		return neutralPOP
	}
}

// expiryValue is the lot-weighted expiry P&L per unit of lot size
func expiryValue(legs []models.OptionLeg, spot float64) float64 {
	var total float64
	for _, leg := range legs {
		total += payoff.LegPnLAtExpiry(leg, spot) * float64(leg.EffectiveLots())
	}
	return total
}

func averageVolatility(legs []models.OptionLeg) float64 {
	if len(legs) == 0 {
		return 0
	}
	var sum float64
	for _, leg := range legs {
		sum += leg.Volatility()
	}
	return sum / float64(len(legs))
}

func latestExpiry(legs []models.OptionLeg) time.Time {
	var latest time.Time
	for _, leg := range legs {
		if leg.Expiry.After(latest) {
			latest = leg.Expiry
		}
	}
	return latest
}
