// Package margin estimates the margin required by a multi-leg option strategy
// by stressing it across a grid of spot and volatility shocks.
package margin

import (
	"math"
	"sync"
	"time"

	"github.com/rzzdr/options-risk-engine/internal/numeric"
	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/internal/scenario"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// Config configures an Engine
type Config struct {
	// Grid is used when a call does not supply its own
	Grid scenario.Grid
	// Workers > 1 evaluates scenarios concurrently
	Workers int
	// Now is the clock used when the market context has no AsOf
	Now func() time.Time
}

// Engine computes scenario-based margin. It holds no per-call state and is
// safe for concurrent use.
type Engine struct {
	pricer  pricing.Pricer
	grid    scenario.Grid
	workers int
	now     func() time.Time
	log     *logger.Logger
}

// NewEngine creates an engine. A nil pricer selects plain Black-76.
func NewEngine(config Config, pricer pricing.Pricer) *Engine {
	if pricer == nil {
		pricer = pricing.Black76Pricer{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Engine{
		pricer:  pricer,
		grid:    config.Grid.WithDefaults(),
		workers: config.Workers,
		now:     config.Now,
		log:     logger.GetLogger("margin.engine"),
	}
}

type preparedLeg struct {
	optionType models.OptionType
	strike     float64
	sign       float64
	units      float64
	years      float64
	vol        float64
}

type outcome struct {
	scenario  scenario.Scenario
	pnl       float64
	fallbacks int
}

// Calculate returns the margin for legs under market. grid may be nil, in which
// case the engine's configured grid applies. It never fails: numeric
// singularities degrade to intrinsic pricing.
func (e *Engine) Calculate(legs []models.OptionLeg, market models.MarketContext, grid *scenario.Grid) models.MarginResult {
	if len(legs) == 0 {
		return models.MarginResult{}
	}

	g := e.grid
	if grid != nil {
		g = grid.WithDefaults()
	}

	lotSize := market.LotSize
	if lotSize < 1 {
		lotSize = 1
	}
	asOf := market.AsOf
	if asOf.IsZero() {
		asOf = e.now()
	}

	prepared := make([]preparedLeg, len(legs))
	var currentValue, shortPremium float64
	for i, leg := range legs {
		units := leg.Units(lotSize)
		sign := leg.Action.Sign()
		premium := leg.PremiumOrZero()

		prepared[i] = preparedLeg{
			optionType: leg.OptionType,
			strike:     leg.Strike,
			sign:       sign,
			units:      units,
			years:      pricing.TimeToExpiry(leg.Expiry, asOf),
			vol:        leg.Volatility(),
		}

		currentValue += sign * premium * units
		if leg.Action == models.ActionSell {
			shortPremium += premium * units
		}
	}

	scenarios := g.Scenarios(market.Spot)
	outcomes := make([]outcome, len(scenarios))
	evaluate := func(i int) {
		outcomes[i] = e.evaluate(scenarios[i], prepared, market.RiskFreeRate, currentValue)
	}

	if e.workers > 1 && len(scenarios) > 1 {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < min(e.workers, len(scenarios)); w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					evaluate(i)
				}
			}()
		}
		for i := range scenarios {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	} else {
		for i := range scenarios {
			evaluate(i)
		}
	}

	// reduce in grid order so ties resolve to the earliest scenario
	result := models.MarginResult{}
	var worst *outcome
	for i := range outcomes {
		o := &outcomes[i]
		result.PricingFallbacks += o.fallbacks
		if !numeric.IsFinite(o.pnl) {
			continue
		}
		if worst == nil || o.pnl < worst.pnl {
			worst = o
		}
	}

	if worst != nil {
		result.SpanMargin = math.Max(0, -worst.pnl)
		result.WorstScenario = &models.ScenarioLoss{
			SpotMove: worst.scenario.SpotMove,
			VolShift: worst.scenario.VolShift,
			Spot:     worst.scenario.Spot,
			PnL:      worst.pnl,
		}
	}

	result.ExposureMargin = g.ExposurePercent * shortPremium
	if !numeric.IsFinite(result.ExposureMargin) || result.ExposureMargin < 0 {
		result.ExposureMargin = 0
	}

	result.TotalMargin = numeric.Round(math.Max(result.SpanMargin, result.ExposureMargin))

	if result.PricingFallbacks > 0 {
		e.log.Debugf("Margin for %d legs used intrinsic fallback %d times", len(legs), result.PricingFallbacks)
	}
	return result
}

func (e *Engine) evaluate(s scenario.Scenario, legs []preparedLeg, rate, currentValue float64) outcome {
	out := outcome{scenario: s}

	var value float64
	for _, leg := range legs {
		res := e.pricer.TryPrice(pricing.Input{
			Type:       leg.optionType,
			Forward:    s.Spot * math.Exp(rate*leg.years),
			Strike:     leg.strike,
			Years:      leg.years,
			Rate:       rate,
			Volatility: s.Vol(leg.vol),
		})
		if res.Fallback {
			out.fallbacks++
		}
		value += leg.sign * res.Value * leg.units
	}

	out.pnl = value - currentValue
	return out
}
