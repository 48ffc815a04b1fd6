package margin

import (
	"math"

	"github.com/rzzdr/options-risk-engine/internal/numeric"
	"github.com/rzzdr/options-risk-engine/pkg/models"
)

// Parameters of the approximate model
const (
	approxVarRate      = 0.20
	approxVarFloorRate = 0.10
	approxExposureRate = 0.03
)

var approxStressMultipliers = []float64{0.7, 0.8, 1.2, 1.3}

// Model names accepted by callers that let users pick a margin model
const (
	ModelScenario = "scenario"
	ModelApprox   = "approx"
)

// ApproximateMargin is the quick exchange-style estimate: VAR plus exposure on
// every short leg, the debit of long legs and an expiry stress test at ±20% and
// ±30%, whichever is largest. It returns 0 for no legs or no spot.
func ApproximateMargin(legs []models.OptionLeg, lotSize int, spot float64) float64 {
	if len(legs) == 0 || spot == 0 || math.IsNaN(spot) {
		return 0
	}
	if lotSize < 1 {
		lotSize = 1
	}
	s := math.Max(spot, 1)

	var varExposure, longDebit float64
	for _, leg := range legs {
		units := leg.Units(lotSize)
		if leg.Action == models.ActionSell {
			otm := outOfTheMoney(leg, s)
			varMargin := math.Max(approxVarRate*s-otm, approxVarFloorRate*s)
			varExposure += (varMargin + approxExposureRate*s) * units
			continue
		}
		longDebit += math.Max(0, leg.PremiumOrZero()*units)
	}

	var worstStress float64
	for _, m := range approxStressMultipliers {
		sx := math.Max(1, s*m)
		var pnl float64
		for _, leg := range legs {
			units := leg.Units(lotSize)
			intrinsic := leg.Intrinsic(sx) * units
			premium := leg.PremiumOrZero() * units
			if leg.Action == models.ActionSell {
				pnl += premium - intrinsic
			} else {
				pnl += intrinsic - premium
			}
		}
		worstStress = math.Max(worstStress, math.Max(0, -pnl))
	}

	return numeric.Round(math.Max(varExposure, math.Max(worstStress, longDebit)))
}

func outOfTheMoney(leg models.OptionLeg, spot float64) float64 {
	if leg.OptionType.IsCall() {
		return math.Max(0, leg.Strike-spot)
	}
	return math.Max(0, spot-leg.Strike)
}
