package strategy

import (
	"math"

	"github.com/rzzdr/options-risk-engine/pkg/models"
)

const (
	minTrendPoints  = 10
	boundaryPoints  = 5
	trendWindow     = 15
	trendQualifying = 0.6
)

// unlimitedProfit applies the boundary-trend heuristic to the max profit index.
// Near the low end a falling payoff reads as put-like unlimited profit, near the
// high end a rising payoff reads as call-like unlimited profit.
func unlimitedProfit(curve []models.PayoffPoint, idx int) bool {
	n := len(curve)
	if idx < 0 || n < minTrendPoints {
		return false
	}
	if idx <= boundaryPoints {
		return trendHolds(head(curve), func(prev, cur float64) bool { return cur < prev })
	}
	if idx >= n-boundaryPoints {
		return trendHolds(tail(curve), func(prev, cur float64) bool { return cur > prev })
	}
	return false
}

// unlimitedLoss mirrors unlimitedProfit for the max loss index. Near the low end
// it counts rising steps, the payoff improving away from zero spot; near the
// high end it counts falling steps.
func unlimitedLoss(curve []models.PayoffPoint, idx int) bool {
	n := len(curve)
	if idx < 0 || n < minTrendPoints {
		return false
	}
	if idx <= boundaryPoints {
		return trendHolds(head(curve), func(prev, cur float64) bool { return cur > prev })
	}
	if idx >= n-boundaryPoints {
		return trendHolds(tail(curve), func(prev, cur float64) bool { return cur < prev })
	}
	return false
}

func head(curve []models.PayoffPoint) []models.PayoffPoint {
	return curve[:min(trendWindow, len(curve))]
}

func tail(curve []models.PayoffPoint) []models.PayoffPoint {
	return curve[max(0, len(curve)-trendWindow):]
}

func trendHolds(window []models.PayoffPoint, step func(prev, cur float64) bool) bool {
	count := 0
	for i := 1; i < len(window); i++ {
		if step(window[i-1].Payoff, window[i].Payoff) {
			count++
		}
	}
	return count >= int(math.Floor(float64(len(window)-1)*trendQualifying))
}

// TailSlopes returns the expiry payoff slope per unit of spot near zero and
// beyond the highest strike, counting lots
func TailSlopes(legs []models.OptionLeg) (low, high float64) {
	for _, leg := range legs {
		lots := float64(leg.EffectiveLots())
		if leg.OptionType.IsCall() {
			high += leg.Action.Sign() * lots
		} else {
			low -= leg.Action.Sign() * lots
		}
	}
	return low, high
}

// AnalyticUnlimited classifies the legs from their tail slopes. A payoff rising
// without bound to the right is unlimited profit; one that keeps improving
// toward zero spot (net long puts) is reported the same way, matching what
// the trend heuristic reports for put-heavy strategies.
func AnalyticUnlimited(legs []models.OptionLeg) (profit, loss bool) {
	low, high := TailSlopes(legs)
	profit = high > 0 || low < 0
	loss = high < 0 || low > 0
	return profit, loss
}
