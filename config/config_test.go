package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/internal/scenario"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 75, cfg.LotSizes["NIFTY"])
	assert.Equal(t, 140, cfg.LotSizes["MIDCPNIFTY"])
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 60*time.Second, cfg.Chain.CacheTTL)
	assert.Equal(t, "https://www.nseindia.com/", cfg.Chain.BaseURL)
	assert.Equal(t, scenario.DefaultGrid(), cfg.Grid())
	assert.False(t, cfg.Kafka.Enabled)

	calc := cfg.CalculatorConfig()
	assert.Equal(t, 121, calc.SweepSteps)
	assert.False(t, calc.Metrics.AnalyticUnlimited)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optrisk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  log_level: debug
risk:
  spot_moves: [-0.1, 0, 0.1]
  risk_free_rate: 0.065
  analytic_unlimited: true
lot_sizes:
  SENSEX: 20
store:
  driver: SQLite
  path: /tmp/optrisk.db
kafka:
  enabled: true
  brokers: ["kafka-1:9092", "kafka-2:9092"]
`), 0o600))

	t.Setenv("OPTRISK_API_PORT", "9001")
	t.Setenv("OPTRISK_BROKER_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, 9001, cfg.API.Port)
	assert.Equal(t, "from-env", cfg.Broker.APIKey)
	assert.Equal(t, 20, cfg.LotSizes["SENSEX"])
	assert.Equal(t, 75, cfg.LotSizes["NIFTY"])
	assert.Equal(t, "sqlite", cfg.Store.Driver)

	grid := cfg.Grid()
	assert.Equal(t, []float64{-0.1, 0, 0.1}, grid.SpotMoves)
	assert.Equal(t, scenario.DefaultVolShifts, grid.VolShifts)

	calc := cfg.CalculatorConfig()
	assert.Equal(t, 0.065, calc.RiskFreeRate)
	assert.True(t, calc.Metrics.AnalyticUnlimited)
	assert.Equal(t, 0.065, cfg.NSEConfig().RiskFreeRate)

	k := cfg.KafkaClientConfig()
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, k.Brokers)
	assert.Equal(t, "position_events", k.PositionTopic)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
