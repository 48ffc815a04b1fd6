package adapters

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/pkg/metrics"
)

func TestNilRecorderIsNoop(t *testing.T) {
	a := NewMetricsAdapter(nil)
	assert.NotPanics(t, func() {
		a.RecordChainFetch("NIFTY", "cache", nil, time.Millisecond)
		a.RecordGatewayCall("funds", 200, time.Millisecond)
		a.RecordMarginCalculation("scenario", 0, time.Millisecond)
		a.RecordMetricsCalculation(time.Millisecond)
		a.RecordRiskEvaluation("position", time.Millisecond)
		a.RecordAPIRequest("GET", "/health", 200, time.Millisecond)
		a.SetWebsocketClients(1)
		a.RecordKafkaMessage("risk_reports", "ok")
		a.WatchPricingCache(context.Background(), nil, time.Second)
	})
}

func TestForwardsToRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewMetricsAdapter(metrics.NewRecorder(reg))

	a.RecordGatewayCall("basketorder", 200, time.Millisecond)
	a.RecordKafkaMessage("risk_reports", "ok")

	count, err := testutil.GatherAndCount(reg, "optrisk_gateway_requests_total", "optrisk_kafka_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestWatchPricingCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewMetricsAdapter(metrics.NewRecorder(reg))

	cache := pricing.NewCache(pricing.Black76Pricer{}, 0)
	in := pricing.Input{Forward: 100, Strike: 100, Years: 0.1, Volatility: 0.2}
	cache.TryPrice(in)
	cache.TryPrice(in)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.WatchPricingCache(ctx, cache, time.Hour)

	expected := `
# HELP optrisk_pricing_cache_entries Number of memoized option prices
# TYPE optrisk_pricing_cache_entries gauge
optrisk_pricing_cache_entries 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "optrisk_pricing_cache_entries"))
}
