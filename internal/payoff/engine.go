// Package payoff builds payoff curves for a leg set across a sweep of spot prices.
package payoff

import (
	"math"
	"time"

	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/pkg/models"
)

// Engine produces expiry and mark-to-market payoff curves
type Engine struct {
	pricer pricing.Pricer
}

// NewEngine creates an engine. A nil pricer selects plain Black-76.
func NewEngine(pricer pricing.Pricer) *Engine {
	if pricer == nil {
		pricer = pricing.Black76Pricer{}
	}
	return &Engine{pricer: pricer}
}

// Sweep returns steps spot levels spread evenly over center*(1±width), ends included
func Sweep(center, width float64, steps int) []float64 {
	if steps < 2 || !(center > 0) {
		return []float64{center}
	}
	lo := center * (1 - width)
	hi := center * (1 + width)
	if lo < 0 {
		lo = 0
	}

	out := make([]float64, steps)
	step := (hi - lo) / float64(steps-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	out[steps-1] = hi
	return out
}

// LegPnLAtExpiry is one leg's expiry P&L per lot multiplier: intrinsic less
// premium when bought, premium less intrinsic when sold
func LegPnLAtExpiry(leg models.OptionLeg, spot float64) float64 {
	return leg.Action.Sign() * (leg.Intrinsic(spot) - leg.PremiumOrZero())
}

// AtExpiry returns the intrinsic P&L of legs at each spot
func AtExpiry(legs []models.OptionLeg, lotSize int, spots []float64) []models.PayoffPoint {
	out := make([]models.PayoffPoint, len(spots))
	for i, spot := range spots {
		var total float64
		for _, leg := range legs {
			total += LegPnLAtExpiry(leg, spot) * leg.Units(lotSize)
		}
		out[i] = models.PayoffPoint{At: spot, Payoff: total}
	}
	return out
}

// MarkToMarket returns the P&L of legs at each spot if closed at target,
// valuing every leg with Black-76 at its remaining time to expiry
func (e *Engine) MarkToMarket(legs []models.OptionLeg, market models.MarketContext, target time.Time, spots []float64) []models.PayoffPoint {
	if target.IsZero() {
		target = market.AsOf
	}
	if target.IsZero() {
		target = time.Now()
	}

	years := make([]float64, len(legs))
	for i, leg := range legs {
		years[i] = pricing.TimeToExpiry(leg.Expiry, target)
	}

	out := make([]models.PayoffPoint, len(spots))
	for i, spot := range spots {
		var total float64
		for j, leg := range legs {
			res := e.pricer.TryPrice(pricing.Input{
				Type:       leg.OptionType,
				Forward:    spot * math.Exp(market.RiskFreeRate*years[j]),
				Strike:     leg.Strike,
				Years:      years[j],
				Rate:       market.RiskFreeRate,
				Volatility: leg.Volatility(),
			})
			total += leg.Action.Sign() * (res.Value - leg.PremiumOrZero()) * leg.Units(market.LotSize)
		}
		out[i] = models.PayoffPoint{At: spot, Payoff: total}
	}
	return out
}

// TotalInvestment is the signed net premium: positive for a net debit, negative for a net credit
func TotalInvestment(legs []models.OptionLeg, lotSize int) float64 {
	var total float64
	for _, leg := range legs {
		total += leg.Action.Sign() * leg.PremiumOrZero() * leg.Units(lotSize)
	}
	return total
}
