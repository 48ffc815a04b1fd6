package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/internal/numeric"
	"github.com/rzzdr/options-risk-engine/internal/payoff"
	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/pkg/models"
)

var asOf = time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)

func leg(action models.Action, typ models.OptionType, strike, premium float64) models.OptionLeg {
	return models.OptionLeg{
		Action:            action,
		OptionType:        typ,
		Strike:            strike,
		Lots:              1,
		Premium:           models.Float64(premium),
		ImpliedVolatility: 0.2,
		Expiry:            asOf.Add(30 * 24 * time.Hour),
	}
}

func inputFor(legs []models.OptionLeg) Input {
	return Input{
		PayoffCurve:     payoff.AtExpiry(legs, 1, payoff.Sweep(100, 0.3, 61)),
		TotalInvestment: payoff.TotalInvestment(legs, 1),
		Legs:            legs,
		UnderlyingPrice: 100,
		AsOf:            asOf,
	}
}

func TestEmptyCurve(t *testing.T) {
	m := Calculate(Input{})
	assert.Equal(t, models.StrategyMetrics{BreakevenPoints: []float64{}}, m)
}

func TestLinearCrossing(t *testing.T) {
	m := Calculate(Input{PayoffCurve: []models.PayoffPoint{{At: 110, Payoff: 10}, {At: 90, Payoff: -10}}})

	assert.Equal(t, []float64{100}, m.BreakevenPoints)
	assert.Equal(t, 10.0, m.MaxProfit)
	assert.Equal(t, -10.0, m.MaxLoss)
	assert.False(t, m.IsMaxProfitUnlimited)
	assert.False(t, m.IsMaxLossUnlimited)
	assert.Zero(t, m.ROI)
	// no legs means no volatility to work with
	assert.Equal(t, 50.0, m.POP)
}

func TestBreakevens(t *testing.T) {
	t.Run("interpolated", func(t *testing.T) {
		be := Breakevens([]models.PayoffPoint{{At: 0, Payoff: -1}, {At: 10, Payoff: 3}})
		assert.Equal(t, []float64{2.5}, be)
	})

	t.Run("exact zeros including the last point", func(t *testing.T) {
		be := Breakevens([]models.PayoffPoint{{At: 1, Payoff: 0}, {At: 2, Payoff: 4}, {At: 3, Payoff: 1e-9}})
		assert.Equal(t, []float64{1, 3}, be)
	})

	t.Run("non-finite pairs are skipped", func(t *testing.T) {
		be := Breakevens([]models.PayoffPoint{{At: 0, Payoff: -10}, {At: 1, Payoff: math.NaN()}, {At: 2, Payoff: 10}})
		assert.Empty(t, be)
	})

	t.Run("duplicates collapse after rounding", func(t *testing.T) {
		be := Breakevens([]models.PayoffPoint{{At: 99.999, Payoff: 0}, {At: 100.001, Payoff: 0}, {At: 101, Payoff: 5}})
		assert.Equal(t, []float64{100}, be)
	})
}

func TestShortCall(t *testing.T) {
	m := Calculate(inputFor([]models.OptionLeg{leg(models.ActionSell, models.OptionTypeCall, 100, 5)}))

	assert.Equal(t, 5.0, m.MaxProfit)
	assert.Equal(t, -25.0, m.MaxLoss)
	assert.False(t, m.IsMaxProfitUnlimited)
	assert.True(t, m.IsMaxLossUnlimited)
	assert.Equal(t, 100.0, m.ROI)
	assert.Equal(t, []float64{105}, m.BreakevenPoints)
}

func TestLongPut(t *testing.T) {
	m := Calculate(inputFor([]models.OptionLeg{leg(models.ActionBuy, models.OptionTypePut, 100, 5)}))

	assert.Equal(t, 25.0, m.MaxProfit)
	assert.Equal(t, -5.0, m.MaxLoss)
	assert.True(t, m.IsMaxProfitUnlimited)
	assert.False(t, m.IsMaxLossUnlimited)
	assert.Equal(t, []float64{95}, m.BreakevenPoints)
}

func TestShortPutPOP(t *testing.T) {
	m := Calculate(inputFor([]models.OptionLeg{leg(models.ActionSell, models.OptionTypePut, 100, 5)}))

	assert.True(t, m.IsMaxLossUnlimited)
	assert.False(t, m.IsMaxProfitUnlimited)
	require.Equal(t, []float64{95}, m.BreakevenPoints)

	years := 30.0 / 365
	d2 := (math.Log(100.0/95) - 0.5*0.04*years) / (0.2 * math.Sqrt(years))
	assert.InDelta(t, numeric.Round2(pricing.NormCDF(d2)*100), m.POP, 0.011)
	assert.Greater(t, m.POP, 75.0)
}

func TestIronCondorPOP(t *testing.T) {
	legs := []models.OptionLeg{
		leg(models.ActionBuy, models.OptionTypePut, 85, 0.5),
		leg(models.ActionSell, models.OptionTypePut, 90, 1.5),
		leg(models.ActionSell, models.OptionTypeCall, 110, 1.5),
		leg(models.ActionBuy, models.OptionTypeCall, 115, 0.5),
	}
	m := Calculate(inputFor(legs))

	assert.Equal(t, []float64{88, 112}, m.BreakevenPoints)
	assert.Equal(t, 2.0, m.MaxProfit)
	assert.Equal(t, -3.0, m.MaxLoss)
	assert.False(t, m.IsMaxProfitUnlimited)
	assert.False(t, m.IsMaxLossUnlimited)
	assert.Greater(t, m.POP, 0.0)
	assert.Less(t, m.POP, 100.0)
}

func TestPOPNeutralCases(t *testing.T) {
	in := inputFor([]models.OptionLeg{leg(models.ActionSell, models.OptionTypePut, 100, 5)})
	in.UnderlyingPrice = 0
	assert.Equal(t, 50.0, Calculate(in).POP)
}

func TestSampledPOPWithoutBreakevens(t *testing.T) {
	in := Input{
		PayoffCurve:     []models.PayoffPoint{{At: 90, Payoff: 5}, {At: 110, Payoff: 5}},
		Legs:            []models.OptionLeg{leg(models.ActionSell, models.OptionTypePut, 50, 5)},
		UnderlyingPrice: 100,
		AsOf:            asOf,
	}

	assert.Equal(t, 50.0, Calculate(in).POP)
	assert.Equal(t, 100.0, NewAnalyzer(Options{SampledPOPWithoutBreakevens: true}).Calculate(in).POP)

	in.Legs = []models.OptionLeg{leg(models.ActionBuy, models.OptionTypePut, 50, 5)}
	assert.Equal(t, 0.0, NewAnalyzer(Options{SampledPOPWithoutBreakevens: true}).Calculate(in).POP)
}

func TestShortCurveIsNeverUnlimited(t *testing.T) {
	curve := []models.PayoffPoint{{At: 1, Payoff: 1}, {At: 2, Payoff: 2}, {At: 3, Payoff: 3}, {At: 4, Payoff: 4}}
	m := Calculate(Input{PayoffCurve: curve})
	assert.False(t, m.IsMaxProfitUnlimited)
	assert.False(t, m.IsMaxLossUnlimited)
}

func TestAnalyticUnlimited(t *testing.T) {
	tests := []struct {
		name         string
		legs         []models.OptionLeg
		profit, loss bool
	}{
		{"short call", []models.OptionLeg{leg(models.ActionSell, models.OptionTypeCall, 100, 5)}, false, true},
		{"long call", []models.OptionLeg{leg(models.ActionBuy, models.OptionTypeCall, 100, 5)}, true, false},
		{"long put", []models.OptionLeg{leg(models.ActionBuy, models.OptionTypePut, 100, 5)}, true, false},
		{"short put", []models.OptionLeg{leg(models.ActionSell, models.OptionTypePut, 100, 5)}, false, true},
		{"call spread", []models.OptionLeg{
			leg(models.ActionBuy, models.OptionTypeCall, 100, 5),
			leg(models.ActionSell, models.OptionTypeCall, 110, 2),
		}, false, false},
	}

	analyzer := NewAnalyzer(Options{AnalyticUnlimited: true})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := analyzer.Calculate(inputFor(tt.legs))
			assert.Equal(t, tt.profit, m.IsMaxProfitUnlimited)
			assert.Equal(t, tt.loss, m.IsMaxLossUnlimited)
		})
	}
}

func TestNonFinitePayoffsSkipped(t *testing.T) {
	tests := []struct {
		name         string
		curve        []models.PayoffPoint
		profit, loss float64
	}{
		{"no finite point", []models.PayoffPoint{{At: 1, Payoff: math.NaN()}, {At: 2, Payoff: math.Inf(1)}}, 0, 0},
		{"infinite point between finite ones", []models.PayoffPoint{{At: 1, Payoff: -5}, {At: 2, Payoff: math.Inf(1)}, {At: 3, Payoff: 7}}, 7, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Calculate(Input{PayoffCurve: tt.curve})
			assert.Equal(t, tt.profit, m.MaxProfit)
			assert.Equal(t, tt.loss, m.MaxLoss)
			assert.False(t, math.IsNaN(m.ROI))
		})
	}

	m := Calculate(Input{PayoffCurve: tests[0].curve})
	assert.Equal(t, 50.0, m.POP)
}

func TestMissingLotsCountAsOne(t *testing.T) {
	one := leg(models.ActionSell, models.OptionTypeCall, 100, 5)
	omitted := one
	omitted.Lots = 0

	low, high := TailSlopes([]models.OptionLeg{omitted})
	assert.Equal(t, 0.0, low)
	assert.Equal(t, -1.0, high)
	assert.Equal(t, expiryValue([]models.OptionLeg{one}, 120), expiryValue([]models.OptionLeg{omitted}, 120))
	assert.Equal(t, Calculate(inputFor([]models.OptionLeg{one})), Calculate(inputFor([]models.OptionLeg{omitted})))
}
