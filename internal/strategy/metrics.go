// Package strategy summarizes a payoff curve into the risk metrics shown next to
// a strategy: max profit and loss, ROI, breakevens, unlimited-risk flags and
// probability of profit.
package strategy

import (
	"math"
	"sort"
	"time"

	"github.com/rzzdr/options-risk-engine/internal/numeric"
	"github.com/rzzdr/options-risk-engine/pkg/models"
)

// Input is everything the metrics are computed from
type Input struct {
	PayoffCurve []models.PayoffPoint
	// TotalInvestment is the signed net debit (positive) or credit (negative)
	TotalInvestment float64
	Legs            []models.OptionLeg
	UnderlyingPrice float64
	RiskFreeRate    float64
	// AsOf anchors the probability horizon; zero means now
	AsOf time.Time
}

// Options switch on alternatives to the default behaviour
type Options struct {
	// AnalyticUnlimited classifies unlimited profit and loss from the legs'
	// tail slopes instead of the boundary-trend heuristic
	AnalyticUnlimited bool
	// SampledPOPWithoutBreakevens returns 100 or 0 for curves that never cross
	// zero instead of the neutral 50
	SampledPOPWithoutBreakevens bool
	Now                         func() time.Time
}

// Analyzer computes StrategyMetrics; it is stateless and safe for concurrent use
type Analyzer struct {
	opts Options
}

// NewAnalyzer creates an Analyzer
func NewAnalyzer(opts Options) *Analyzer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Analyzer{opts: opts}
}

// Calculate uses the default options
func Calculate(in Input) models.StrategyMetrics {
	return NewAnalyzer(Options{}).Calculate(in)
}

// Calculate never fails; missing data degrades to zeros or a neutral 50% POP
func (a *Analyzer) Calculate(in Input) models.StrategyMetrics {
	if len(in.PayoffCurve) == 0 {
		return models.StrategyMetrics{BreakevenPoints: []float64{}}
	}

	curve := make([]models.PayoffPoint, len(in.PayoffCurve))
	copy(curve, in.PayoffCurve)
	sort.SliceStable(curve, func(i, j int) bool { return curve[i].At < curve[j].At })

	maxProfit, maxLoss := math.Inf(-1), math.Inf(1)
	maxProfitIdx, maxLossIdx := -1, -1
	for i, p := range curve {
		if !numeric.IsFinite(p.Payoff) {
			continue
		}
		if p.Payoff > maxProfit {
			maxProfit, maxProfitIdx = p.Payoff, i
		}
		if p.Payoff < maxLoss {
			maxLoss, maxLossIdx = p.Payoff, i
		}
	}
	if maxProfitIdx < 0 {
		maxProfit, maxLoss = 0, 0
	}

	out := models.StrategyMetrics{
		MaxProfit: numeric.Round(maxProfit),
		MaxLoss:   numeric.Round(maxLoss),
	}

	if a.opts.AnalyticUnlimited {
		out.IsMaxProfitUnlimited, out.IsMaxLossUnlimited = AnalyticUnlimited(in.Legs)
	} else {
		out.IsMaxProfitUnlimited = unlimitedProfit(curve, maxProfitIdx)
		out.IsMaxLossUnlimited = unlimitedLoss(curve, maxLossIdx)
	}

	if in.TotalInvestment != 0 && numeric.IsFinite(in.TotalInvestment) {
		out.ROI = numeric.Round2(maxProfit / math.Abs(in.TotalInvestment) * 100)
	}

	out.BreakevenPoints = Breakevens(curve)
	out.POP = numeric.Round2(a.probabilityOfProfit(in, out.BreakevenPoints))

	return out
}
