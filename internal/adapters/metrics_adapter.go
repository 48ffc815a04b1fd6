package adapters

import (
	"context"
	"time"

	"github.com/rzzdr/options-risk-engine/internal/broker"
	"github.com/rzzdr/options-risk-engine/internal/chain"
	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/internal/risk"
	"github.com/rzzdr/options-risk-engine/pkg/metrics"
)

// MetricsAdapter adapts *metrics.Recorder to the recorder interfaces of the
// chain, broker and risk packages. A nil recorder turns every call into a no-op.
type MetricsAdapter struct {
	recorder *metrics.Recorder
}

var (
	_ chain.MetricsRecorder  = (*MetricsAdapter)(nil)
	_ broker.MetricsRecorder = (*MetricsAdapter)(nil)
	_ risk.MetricsRecorder   = (*MetricsAdapter)(nil)
)

// NewMetricsAdapter creates a new MetricsAdapter
func NewMetricsAdapter(recorder *metrics.Recorder) *MetricsAdapter {
	return &MetricsAdapter{
		recorder: recorder,
	}
}

// RecordChainFetch implements chain.MetricsRecorder
func (a *MetricsAdapter) RecordChainFetch(underlying, source string, err error, latency time.Duration) {
	if a.recorder != nil {
		a.recorder.RecordChainFetch(underlying, source, err, latency)
	}
}

// RecordGatewayCall implements broker.MetricsRecorder
func (a *MetricsAdapter) RecordGatewayCall(endpoint string, status int, latency time.Duration) {
	if a.recorder != nil {
		a.recorder.RecordGatewayCall(endpoint, status, latency)
	}
}

// RecordMarginCalculation implements risk.MetricsRecorder
func (a *MetricsAdapter) RecordMarginCalculation(model string, fallbacks int, latency time.Duration) {
	if a.recorder != nil {
		a.recorder.RecordMarginCalculation(model, fallbacks, latency)
	}
}

// RecordMetricsCalculation implements risk.MetricsRecorder
func (a *MetricsAdapter) RecordMetricsCalculation(latency time.Duration) {
	if a.recorder != nil {
		a.recorder.RecordMetricsCalculation(latency)
	}
}

// RecordRiskEvaluation implements risk.MetricsRecorder
func (a *MetricsAdapter) RecordRiskEvaluation(source string, latency time.Duration) {
	if a.recorder != nil {
		a.recorder.RecordRiskEvaluation(source, latency)
	}
}

// RecordAPIRequest forwards an HTTP request observation
func (a *MetricsAdapter) RecordAPIRequest(method, path string, status int, latency time.Duration) {
	if a.recorder != nil {
		a.recorder.RecordAPIRequest(method, path, status, latency)
	}
}

// SetWebsocketClients forwards the live client count
func (a *MetricsAdapter) SetWebsocketClients(n int) {
	if a.recorder != nil {
		a.recorder.SetWebsocketClients(n)
	}
}

// RecordKafkaMessage forwards a produced or consumed message outcome
func (a *MetricsAdapter) RecordKafkaMessage(topic, result string) {
	if a.recorder != nil {
		a.recorder.RecordKafkaMessage(topic, result)
	}
}

// WatchPricingCache publishes the cache size and hit counters every interval until ctx ends
func (a *MetricsAdapter) WatchPricingCache(ctx context.Context, cache *pricing.Cache, interval time.Duration) {
	if a.recorder == nil || cache == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		hits, misses := cache.Stats()
		a.recorder.RecordPricingCache(cache.Len(), hits, misses)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
