package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/config"
	"github.com/rzzdr/options-risk-engine/internal/chain"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

type staticChain struct {
	calls int
}

func (s *staticChain) Snapshot(_ context.Context, underlying string) (*models.ChainSnapshot, error) {
	s.calls++
	expiry := time.Now().Add(7 * 24 * time.Hour)
	return &models.ChainSnapshot{
		Underlying: underlying,
		Spot:       17500,
		Timestamp:  time.Now(),
		Expiries:   []time.Time{expiry},
		Rows: []models.ChainRow{{
			Strike: 17500,
			Expiry: expiry,
			Call:   &models.Quote{LastPrice: 100, ImpliedVolatility: 0.15},
		}},
	}, nil
}

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNewWithSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "optrisk.db")
	cfg := loadConfig(t, "store:\n  driver: sqlite\n  path: "+dbPath+"\nrisk:\n  cache_prices: 100\n")

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.FileExists(t, dbPath)
	assert.NotNil(t, s.PriceCache)
	assert.Equal(t, 75, s.Calculator.LotSize("NIFTY"))

	names := make([]string, 0)
	for _, st := range s.Breakers.Stats() {
		names = append(names, st.Name)
	}
	assert.Contains(t, names, "nse")
}

func TestNewRejectsUnknownDrivers(t *testing.T) {
	_, err := New(context.Background(), loadConfig(t, "store:\n  driver: postgres\n"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))

	_, err = New(context.Background(), loadConfig(t, "store:\n  driver: memory\nchain:\n  cache: memcached\n"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestEvaluateOpenPosition(t *testing.T) {
	s, err := New(context.Background(), loadConfig(t, "store:\n  driver: memory\nrisk:\n  cache_prices: 0\n"))
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, s.PriceCache)

	source := &staticChain{}
	s.Chain = chain.NewCachedProvider(source, chain.NewMemoryCache(), time.Minute)

	ctx := context.Background()
	leg := models.PositionLeg{OptionLeg: models.OptionLeg{
		Action:     models.ActionSell,
		OptionType: models.OptionTypeCall,
		Strike:     17500,
		Lots:       1,
		Expiry:     time.Now().Add(7 * 24 * time.Hour),
	}}

	open, err := s.Store.CreatePosition(ctx, &models.Position{
		Underlying: "nifty",
		Expiry:     leg.Expiry,
		Legs:       []models.PositionLeg{leg},
	})
	require.NoError(t, err)

	closed, err := s.Store.CreatePosition(ctx, &models.Position{
		Underlying: "NIFTY",
		Expiry:     leg.Expiry,
		Status:     models.PositionStatusClosed,
		Legs:       []models.PositionLeg{leg},
	})
	require.NoError(t, err)

	report, err := s.EvaluateOpenPosition(ctx, open.ID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, open.ID, report.PositionID)
	assert.Equal(t, 17500.0, report.Spot)
	assert.Equal(t, 75, report.LotSize)
	assert.Greater(t, report.Margin.TotalMargin, 0.0)

	report, err = s.EvaluateOpenPosition(ctx, closed.ID)
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, 1, source.calls)

	_, err = s.EvaluateOpenPosition(ctx, "missing")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
