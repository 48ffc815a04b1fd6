package models

import "time"

// MarginResult is the output of the margin engine
type MarginResult struct {
	SpanMargin     float64 `json:"spanMargin"`
	ExposureMargin float64 `json:"exposureMargin"`
	TotalMargin    float64 `json:"totalMargin"`

	// WorstScenario is nil for an empty leg set
	WorstScenario    *ScenarioLoss `json:"worstScenario,omitempty"`
	PricingFallbacks int           `json:"pricingFallbacks,omitempty"`
}

// ScenarioLoss identifies the grid point that produced the worst P&L
type ScenarioLoss struct {
	SpotMove float64 `json:"spotMove"`
	VolShift float64 `json:"volShift"`
	Spot     float64 `json:"spot"`
	PnL      float64 `json:"pnl"`
}

// StrategyMetrics summarizes a payoff curve
type StrategyMetrics struct {
	MaxProfit            float64   `json:"maxProfit"`
	MaxLoss              float64   `json:"maxLoss"`
	IsMaxProfitUnlimited bool      `json:"isMaxProfitUnlimited"`
	IsMaxLossUnlimited   bool      `json:"isMaxLossUnlimited"`
	ROI                  float64   `json:"roi"`
	POP                  float64   `json:"pop"`
	BreakevenPoints      []float64 `json:"breakevenPoints"`
}

// Greeks of a single option price
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// RiskReport bundles everything computed for one leg set
type RiskReport struct {
	PositionID      string          `json:"positionId,omitempty"`
	Underlying      string          `json:"underlying,omitempty"`
	Spot            float64         `json:"spot"`
	LotSize         int             `json:"lotSize"`
	TotalInvestment float64         `json:"totalInvestment"`
	Margin          MarginResult    `json:"margin"`
	Metrics         StrategyMetrics `json:"metrics"`
	PayoffAtExpiry  []PayoffPoint   `json:"payoffsAtExpiry"`
	PayoffAtTarget  []PayoffPoint   `json:"payoffsAtTarget,omitempty"`
	ComputedAt      time.Time       `json:"computedAt"`
}
