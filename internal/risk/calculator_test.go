package risk

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/internal/margin"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

var (
	asOf   = time.Date(2024, 3, 21, 9, 15, 0, 0, time.UTC)
	expiry = time.Date(2024, 3, 28, 10, 0, 0, 0, time.UTC)
)

type fakeChain struct {
	snapshots map[string]*models.ChainSnapshot
}

func (f *fakeChain) Snapshot(_ context.Context, underlying string) (*models.ChainSnapshot, error) {
	s, ok := f.snapshots[underlying]
	if !ok {
		return nil, errors.NotFoundf("no chain for %s", underlying)
	}
	return s, nil
}

func newTestCalculator() *Calculator {
	return NewCalculator(CalculatorConfig{
		LotSizes:    map[string]int{"NIFTY": 75},
		SweepSteps:  61,
		WorkerCount: 2,
		Now:         func() time.Time { return asOf },
	}, nil)
}

func shortCall() []models.OptionLeg {
	return []models.OptionLeg{{
		Action:            models.ActionSell,
		OptionType:        models.OptionTypeCall,
		Strike:            17500,
		Lots:              1,
		Premium:           models.Float64(150),
		ImpliedVolatility: 0.15,
		Expiry:            expiry,
	}}
}

func TestLotSize(t *testing.T) {
	c := newTestCalculator()
	assert.Equal(t, 75, c.LotSize("nifty"))
	assert.Equal(t, 1, c.LotSize("UNKNOWN"))
}

func TestEvaluate(t *testing.T) {
	c := newTestCalculator()
	report := c.Evaluate(Request{
		Underlying: "NIFTY",
		Legs:       shortCall(),
		Market:     models.MarketContext{Spot: 17500},
		Target:     asOf,
	})

	require.NotNil(t, report)
	assert.Equal(t, 75, report.LotSize)
	assert.Equal(t, asOf, report.ComputedAt)
	assert.Equal(t, -150.0*75, report.TotalInvestment)
	assert.Len(t, report.PayoffAtExpiry, 61)
	assert.Len(t, report.PayoffAtTarget, 61)
	assert.Greater(t, report.Margin.TotalMargin, 0.0)
	assert.Equal(t, 150.0*75, report.Metrics.MaxProfit)
	assert.True(t, report.Metrics.IsMaxLossUnlimited)
	assert.Equal(t, []float64{17650}, report.Metrics.BreakevenPoints)

	// the calculator is deterministic for a fixed clock
	assert.Equal(t, report, c.Evaluate(Request{
		Underlying: "NIFTY",
		Legs:       shortCall(),
		Market:     models.MarketContext{Spot: 17500},
		Target:     asOf,
	}))
}

func TestMarginModels(t *testing.T) {
	c := newTestCalculator()
	market := models.MarketContext{Spot: 17500, LotSize: 75, AsOf: asOf}

	approx := c.Margin(shortCall(), market, nil, margin.ModelApprox)
	assert.Equal(t, 382500.0, approx.TotalMargin)
	assert.Equal(t, approx.TotalMargin, approx.SpanMargin)

	scenario := c.Margin(shortCall(), market, nil, margin.ModelScenario)
	assert.NotEqual(t, approx.TotalMargin, scenario.TotalMargin)
	assert.NotNil(t, scenario.WorstScenario)
}

func TestEvaluatePositions(t *testing.T) {
	c := newTestCalculator()
	chain := &fakeChain{snapshots: map[string]*models.ChainSnapshot{
		"NIFTY": {
			Underlying: "NIFTY",
			Spot:       17500,
			Expiries:   []time.Time{expiry},
			Rows: []models.ChainRow{{
				Strike: 17500,
				Expiry: expiry,
				Call:   &models.Quote{LastPrice: 140, ImpliedVolatility: 0.14},
			}},
		},
	}}

	var positions []*models.Position
	for i := 0; i < 5; i++ {
		positions = append(positions, &models.Position{
			ID:         fmt.Sprintf("p%d", i),
			Underlying: "NIFTY",
			Legs: []models.PositionLeg{{OptionLeg: models.OptionLeg{
				Action:     models.ActionSell,
				OptionType: models.OptionTypeCall,
				Strike:     17500,
				Lots:       1,
				Expiry:     expiry,
			}}},
		})
	}
	positions = append(positions, &models.Position{ID: "missing", Underlying: "BANKNIFTY"})

	reports, err := c.EvaluatePositions(context.Background(), positions, chain)
	require.NoError(t, err)
	require.Len(t, reports, 5)
	for i, r := range reports {
		assert.Equal(t, fmt.Sprintf("p%d", i), r.PositionID)
		// premium filled from the chain's last price
		assert.Equal(t, -140.0*75, r.TotalInvestment)
	}
}

func TestEvaluatePositionsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestCalculator().EvaluatePositions(ctx, []*models.Position{{ID: "p"}}, &fakeChain{})
	assert.Error(t, err)
}
