package payoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/pkg/models"
)

func TestSweep(t *testing.T) {
	spots := Sweep(100, 0.3, 61)
	require.Len(t, spots, 61)
	assert.InDelta(t, 70, spots[0], 1e-9)
	assert.InDelta(t, 130, spots[60], 1e-9)
	assert.InDelta(t, 100, spots[30], 1e-9)

	assert.Equal(t, []float64{100}, Sweep(100, 0.3, 1))
	assert.Equal(t, 0.0, Sweep(100, 1.5, 3)[0])
}

func TestAtExpiryBullCallSpread(t *testing.T) {
	legs := []models.OptionLeg{
		{Action: models.ActionBuy, OptionType: models.OptionTypeCall, Strike: 100, Lots: 1, Premium: models.Float64(5)},
		{Action: models.ActionSell, OptionType: models.OptionTypeCall, Strike: 110, Lots: 1, Premium: models.Float64(2)},
	}

	curve := AtExpiry(legs, 10, []float64{90, 103, 105, 120})
	assert.Equal(t, []models.PayoffPoint{
		{At: 90, Payoff: -30},
		{At: 103, Payoff: 0},
		{At: 105, Payoff: 20},
		{At: 120, Payoff: 70},
	}, curve)

	assert.Equal(t, 30.0, TotalInvestment(legs, 10))
}

func TestMarkToMarketConvergesToExpiry(t *testing.T) {
	asOf := time.Date(2024, 3, 21, 9, 15, 0, 0, time.UTC)
	legs := []models.OptionLeg{
		{Action: models.ActionSell, OptionType: models.OptionTypePut, Strike: 17500, Lots: 2, Premium: models.Float64(120), ImpliedVolatility: 0.14, Expiry: asOf.Add(7 * 24 * time.Hour)},
	}
	market := models.MarketContext{Spot: 17500, LotSize: 75, AsOf: asOf}
	spots := []float64{16000, 17500, 19000}

	e := NewEngine(nil)
	now := e.MarkToMarket(legs, market, time.Time{}, spots)
	atExpiry := e.MarkToMarket(legs, market, legs[0].Expiry, spots)
	intrinsic := AtExpiry(legs, 75, spots)

	// with a day floor the deep legs are within a few points of intrinsic
	assert.InDelta(t, intrinsic[0].Payoff, atExpiry[0].Payoff, 150)
	assert.InDelta(t, intrinsic[2].Payoff, atExpiry[2].Payoff, 1)
	// time value makes the short ATM put worth less today than at expiry
	assert.Less(t, now[1].Payoff, intrinsic[1].Payoff)
}
