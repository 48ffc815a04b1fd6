package metrics

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// Handler serves the metrics gathered by g, or the default registry when g is nil
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// PrometheusServer is a server that exposes Prometheus metrics
type PrometheusServer struct {
	server *http.Server
	log    *logger.Logger
}

// NewPrometheusServer creates a standalone metrics server, used by workers
// that have no HTTP API of their own
func NewPrometheusServer(port int, path string, g prometheus.Gatherer) *PrometheusServer {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler(g))

	return &PrometheusServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger.GetLogger("metrics.prometheus"),
	}
}

// Start starts the Prometheus metrics server
func (p *PrometheusServer) Start() error {
	p.log.Infof("Starting Prometheus metrics server on %s", p.server.Addr)
	if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the Prometheus metrics server
func (p *PrometheusServer) Stop(ctx context.Context) error {
	p.log.Infof("Stopping Prometheus metrics server")
	return p.server.Shutdown(ctx)
}

// CollectSystemMetrics samples goroutines and heap usage every interval until ctx ends
func (r *Recorder) CollectSystemMetrics(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var stats runtime.MemStats
	for {
		runtime.ReadMemStats(&stats)
		r.RecordMemoryUsage(stats.Alloc)
		r.RecordGoroutineCount(runtime.NumGoroutine())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
