package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder handles metrics recording and exposure
type Recorder struct {
	// API metrics
	apiRequestCounter   *prometheus.CounterVec
	apiLatencyHistogram *prometheus.HistogramVec

	// Engine metrics
	marginCalcCounter    *prometheus.CounterVec
	marginCalcLatency    *prometheus.HistogramVec
	pricingFallbacks     prometheus.Counter
	metricsCalcLatency   prometheus.Histogram
	riskEvalCounter      *prometheus.CounterVec
	riskEvalLatency      *prometheus.HistogramVec
	pricingCacheEntries  prometheus.Gauge
	pricingCacheHitRatio prometheus.Gauge

	// Upstream metrics
	chainFetchCounter *prometheus.CounterVec
	chainFetchLatency *prometheus.HistogramVec
	gatewayCounter    *prometheus.CounterVec
	gatewayLatency    *prometheus.HistogramVec

	// Event and stream metrics
	kafkaMessages    *prometheus.CounterVec
	websocketClients prometheus.Gauge

	// System metrics
	memoryUsageGauge    prometheus.Gauge
	goroutineCountGauge prometheus.Gauge
}

// NewRecorder creates a recorder whose metrics are registered with reg. A nil
// reg registers with the default Prometheus registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		apiRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optrisk_api_requests_total",
				Help: "The total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		apiLatencyHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optrisk_api_latency_seconds",
				Help:    "API request latency distribution",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // From 1ms to ~16s
			},
			[]string{"method", "path"},
		),

		marginCalcCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optrisk_margin_calculations_total",
				Help: "The total number of margin calculations",
			},
			[]string{"model"},
		),
		marginCalcLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optrisk_margin_latency_seconds",
				Help:    "Margin calculation latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // From 0.1ms to ~1.6s
			},
			[]string{"model"},
		),
		pricingFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "optrisk_pricing_fallbacks_total",
				Help: "Option prices replaced by intrinsic value because Black-76 was not finite",
			},
		),
		metricsCalcLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "optrisk_strategy_metrics_latency_seconds",
				Help:    "Strategy metrics calculation latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
			},
		),
		riskEvalCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optrisk_risk_evaluations_total",
				Help: "The total number of position risk evaluations",
			},
			[]string{"source"},
		),
		riskEvalLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optrisk_risk_evaluation_latency_seconds",
				Help:    "Risk evaluation latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"source"},
		),
		pricingCacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "optrisk_pricing_cache_entries",
				Help: "Number of memoized option prices",
			},
		),
		pricingCacheHitRatio: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "optrisk_pricing_cache_hit_ratio",
				Help: "Share of pricing calls served from the memo cache",
			},
		),

		chainFetchCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optrisk_chain_fetches_total",
				Help: "Option chain lookups by source and result",
			},
			[]string{"underlying", "source", "result"},
		),
		chainFetchLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optrisk_chain_fetch_latency_seconds",
				Help:    "Option chain lookup latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"source"},
		),
		gatewayCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optrisk_gateway_requests_total",
				Help: "Broker gateway requests by endpoint and HTTP status",
			},
			[]string{"endpoint", "status"},
		),
		gatewayLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "optrisk_gateway_latency_seconds",
				Help:    "Broker gateway latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"endpoint"},
		),

		kafkaMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "optrisk_kafka_messages_total",
				Help: "Kafka messages handled by topic and result",
			},
			[]string{"topic", "result"},
		),
		websocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "optrisk_websocket_clients",
				Help: "Connected websocket clients",
			},
		),

		memoryUsageGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "optrisk_memory_usage_bytes",
				Help: "Memory usage of the application in bytes",
			},
		),
		goroutineCountGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "optrisk_goroutine_count",
				Help: "Number of goroutines",
			},
		),
	}
}

// RecordAPIRequest records metrics for an API request
func (r *Recorder) RecordAPIRequest(method, path string, status int, latency time.Duration) {
	r.apiRequestCounter.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.apiLatencyHistogram.WithLabelValues(method, path).Observe(latency.Seconds())
}

// RecordMarginCalculation records a margin calculation and its pricing fallbacks
func (r *Recorder) RecordMarginCalculation(model string, fallbacks int, latency time.Duration) {
	r.marginCalcCounter.WithLabelValues(model).Inc()
	r.marginCalcLatency.WithLabelValues(model).Observe(latency.Seconds())
	if fallbacks > 0 {
		r.pricingFallbacks.Add(float64(fallbacks))
	}
}

// RecordMetricsCalculation records a strategy metrics calculation
func (r *Recorder) RecordMetricsCalculation(latency time.Duration) {
	r.metricsCalcLatency.Observe(latency.Seconds())
}

// RecordRiskEvaluation records a full position evaluation from api, stream or kafka
func (r *Recorder) RecordRiskEvaluation(source string, latency time.Duration) {
	r.riskEvalCounter.WithLabelValues(source).Inc()
	r.riskEvalLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordPricingCache records the size and hit ratio of the pricing memo
func (r *Recorder) RecordPricingCache(entries int, hits, misses uint64) {
	r.pricingCacheEntries.Set(float64(entries))
	if total := hits + misses; total > 0 {
		r.pricingCacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// RecordChainFetch records an option chain lookup served from source (cache or upstream)
func (r *Recorder) RecordChainFetch(underlying, source string, err error, latency time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.chainFetchCounter.WithLabelValues(underlying, source, result).Inc()
	r.chainFetchLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordGatewayCall records a broker gateway request; status 0 means no response
func (r *Recorder) RecordGatewayCall(endpoint string, status int, latency time.Duration) {
	r.gatewayCounter.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	r.gatewayLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordKafkaMessage records a consumed or produced message
func (r *Recorder) RecordKafkaMessage(topic, result string) {
	r.kafkaMessages.WithLabelValues(topic, result).Inc()
}

// SetWebsocketClients records the number of connected stream clients
func (r *Recorder) SetWebsocketClients(n int) {
	r.websocketClients.Set(float64(n))
}

// RecordMemoryUsage records the current memory usage
func (r *Recorder) RecordMemoryUsage(bytesUsed uint64) {
	r.memoryUsageGauge.Set(float64(bytesUsed))
}

// RecordGoroutineCount records the current number of goroutines
func (r *Recorder) RecordGoroutineCount(count int) {
	r.goroutineCountGauge.Set(float64(count))
}
