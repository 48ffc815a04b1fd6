package risk

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rzzdr/options-risk-engine/internal/margin"
	"github.com/rzzdr/options-risk-engine/internal/payoff"
	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/internal/scenario"
	"github.com/rzzdr/options-risk-engine/internal/strategy"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// CalculatorConfig contains configuration for the risk calculator
type CalculatorConfig struct {
	Grid           scenario.Grid
	RiskFreeRate   float64
	SweepWidth     float64
	SweepSteps     int
	WorkerCount    int
	MarginWorkers  int
	LotSizes       map[string]int
	DefaultLotSize int
	Metrics        strategy.Options
	Now            func() time.Time
}

// ChainSource supplies the option chain snapshot used to price positions
type ChainSource interface {
	Snapshot(ctx context.Context, underlying string) (*models.ChainSnapshot, error)
}

// MetricsRecorder observes engine latencies
type MetricsRecorder interface {
	RecordMarginCalculation(model string, fallbacks int, latency time.Duration)
	RecordMetricsCalculation(latency time.Duration)
	RecordRiskEvaluation(source string, latency time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordMarginCalculation(string, int, time.Duration) {}
func (nopRecorder) RecordMetricsCalculation(time.Duration)             {}
func (nopRecorder) RecordRiskEvaluation(string, time.Duration)         {}

// Request is one leg set to evaluate
type Request struct {
	PositionID string
	Underlying string
	Legs       []models.OptionLeg
	Market     models.MarketContext
	// Target is the instant for the mark-to-market curve; zero skips it
	Target time.Time
	// Grid overrides the configured scenario grid
	Grid        *scenario.Grid
	MarginModel string
}

// Calculator evaluates margin and strategy metrics for leg sets
type Calculator struct {
	config  CalculatorConfig
	margin  *margin.Engine
	payoff  *payoff.Engine
	metrics *strategy.Analyzer
	rec     MetricsRecorder
	log     *logger.Logger
}

// NewCalculator creates a new risk calculator. A nil pricer selects plain Black-76.
func NewCalculator(config CalculatorConfig, pricer pricing.Pricer) *Calculator {
	if config.SweepWidth <= 0 {
		config.SweepWidth = 0.3
	}
	if config.SweepSteps < 2 {
		config.SweepSteps = 121
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.DefaultLotSize <= 0 {
		config.DefaultLotSize = 1
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if pricer == nil {
		pricer = pricing.Black76Pricer{}
	}
	metricsOpts := config.Metrics
	metricsOpts.Now = config.Now

	return &Calculator{
		config: config,
		margin: margin.NewEngine(margin.Config{
			Grid:    config.Grid,
			Workers: config.MarginWorkers,
			Now:     config.Now,
		}, pricer),
		payoff:  payoff.NewEngine(pricer),
		metrics: strategy.NewAnalyzer(metricsOpts),
		rec:     nopRecorder{},
		log:     logger.GetLogger("risk.calculator"),
	}
}

// WithMetrics attaches a metrics recorder
func (c *Calculator) WithMetrics(m MetricsRecorder) *Calculator {
	if m != nil {
		c.rec = m
	}
	return c
}

// LotSize returns the configured lot size for an underlying
func (c *Calculator) LotSize(underlying string) int {
	if size, ok := c.config.LotSizes[strings.ToUpper(underlying)]; ok && size > 0 {
		return size
	}
	return c.config.DefaultLotSize
}

// RiskFreeRate returns the configured annual rate
func (c *Calculator) RiskFreeRate() float64 {
	return c.config.RiskFreeRate
}

// Now returns the calculator clock
func (c *Calculator) Now() time.Time {
	return c.config.Now()
}

// Margin computes margin with the named model, scenario unless model is approx
func (c *Calculator) Margin(legs []models.OptionLeg, market models.MarketContext, grid *scenario.Grid, model string) models.MarginResult {
	start := time.Now()
	if model == margin.ModelApprox {
		total := margin.ApproximateMargin(legs, market.LotSize, market.Spot)
		c.rec.RecordMarginCalculation(margin.ModelApprox, 0, time.Since(start))
		return models.MarginResult{SpanMargin: total, TotalMargin: total}
	}
	result := c.margin.Calculate(legs, market, grid)
	c.rec.RecordMarginCalculation(margin.ModelScenario, result.PricingFallbacks, time.Since(start))
	return result
}

// Metrics computes strategy metrics from the expiry payoff of legs around spot
func (c *Calculator) Metrics(legs []models.OptionLeg, market models.MarketContext) models.StrategyMetrics {
	curve := payoff.AtExpiry(legs, market.LotSize, payoff.Sweep(market.Spot, c.config.SweepWidth, c.config.SweepSteps))
	return c.analyze(legs, market, curve)
}

func (c *Calculator) analyze(legs []models.OptionLeg, market models.MarketContext, curve []models.PayoffPoint) models.StrategyMetrics {
	start := time.Now()
	m := c.metrics.Calculate(c.metricsInput(legs, market, curve))
	c.rec.RecordMetricsCalculation(time.Since(start))
	return m
}

func (c *Calculator) metricsInput(legs []models.OptionLeg, market models.MarketContext, curve []models.PayoffPoint) strategy.Input {
	return strategy.Input{
		PayoffCurve:     curve,
		TotalInvestment: payoff.TotalInvestment(legs, market.LotSize),
		Legs:            legs,
		UnderlyingPrice: market.Spot,
		RiskFreeRate:    market.RiskFreeRate,
		AsOf:            market.AsOf,
	}
}

// Evaluate runs the payoff, metrics and margin engines over one request
func (c *Calculator) Evaluate(req Request) *models.RiskReport {
	market := req.Market
	if market.LotSize <= 0 {
		market.LotSize = c.LotSize(req.Underlying)
	}
	if market.AsOf.IsZero() {
		market.AsOf = c.config.Now()
	}

	spots := payoff.Sweep(market.Spot, c.config.SweepWidth, c.config.SweepSteps)
	atExpiry := payoff.AtExpiry(req.Legs, market.LotSize, spots)

	report := &models.RiskReport{
		PositionID:      req.PositionID,
		Underlying:      req.Underlying,
		Spot:            market.Spot,
		LotSize:         market.LotSize,
		TotalInvestment: payoff.TotalInvestment(req.Legs, market.LotSize),
		Margin:          c.Margin(req.Legs, market, req.Grid, req.MarginModel),
		Metrics:         c.analyze(req.Legs, market, atExpiry),
		PayoffAtExpiry:  atExpiry,
		ComputedAt:      market.AsOf,
	}
	if !req.Target.IsZero() {
		report.PayoffAtTarget = c.payoff.MarkToMarket(req.Legs, market, req.Target, spots)
	}

	c.log.Debugf("Evaluated %d legs for %s: margin %.0f, pop %.2f", len(req.Legs), req.Underlying, report.Margin.TotalMargin, report.Metrics.POP)
	return report
}

// EvaluatePosition prices a stored position against the current chain
func (c *Calculator) EvaluatePosition(ctx context.Context, position *models.Position, source ChainSource) (*models.RiskReport, error) {
	start := time.Now()
	defer func() { c.rec.RecordRiskEvaluation("position", time.Since(start)) }()

	snapshot, err := source.Snapshot(ctx, position.Underlying)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch chain for %s", position.Underlying)
	}

	return c.Evaluate(Request{
		PositionID: position.ID,
		Underlying: position.Underlying,
		Legs:       snapshot.Enrich(position.OptionLegs()),
		Market: models.MarketContext{
			Spot:         snapshot.Spot,
			RiskFreeRate: c.config.RiskFreeRate,
			LotSize:      c.LotSize(position.Underlying),
			AsOf:         c.config.Now(),
		},
	}), nil
}

// EvaluatePositions evaluates positions concurrently. Positions whose chain
// cannot be fetched are logged and left out; the result order follows input.
func (c *Calculator) EvaluatePositions(ctx context.Context, positions []*models.Position, source ChainSource) ([]*models.RiskReport, error) {
	startTime := time.Now()
	c.log.Infof("Starting risk evaluation for %d positions", len(positions))

	type job struct {
		index    int
		position *models.Position
	}

	jobs := make(chan job, len(positions))
	reports := make([]*models.RiskReport, len(positions))

	var wg sync.WaitGroup
	workerCount := min(c.config.WorkerCount, len(positions))

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					continue
				}
				report, err := c.EvaluatePosition(ctx, j.position, source)
				if err != nil {
					c.log.Warnf("Error evaluating position %s: %v", j.position.ID, err)
					continue
				}
				reports[j.index] = report
			}
		}()
	}

	for i, position := range positions {
		jobs <- job{index: i, position: position}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "risk evaluation cancelled")
	}

	out := make([]*models.RiskReport, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			out = append(out, r)
		}
	}

	c.log.Infof("Completed risk evaluation for %d of %d positions in %v", len(out), len(positions), time.Since(startTime))
	return out, nil
}
