// Package app assembles the services shared by the API server and the risk worker.
package app

import (
	"context"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rzzdr/options-risk-engine/config"
	"github.com/rzzdr/options-risk-engine/internal/adapters"
	"github.com/rzzdr/options-risk-engine/internal/chain"
	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/internal/risk"
	"github.com/rzzdr/options-risk-engine/internal/store"
	"github.com/rzzdr/options-risk-engine/pkg/metrics"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/circuit"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// Services holds the long-lived components built from the configuration
type Services struct {
	Config     *config.Config
	Registry   *prometheus.Registry
	Recorder   *metrics.Recorder
	Metrics    *adapters.MetricsAdapter
	Breakers   *circuit.Registry
	Store      *store.Store
	Chain      *chain.CachedProvider
	Pricer     pricing.Pricer
	PriceCache *pricing.Cache
	Calculator *risk.Calculator

	closers []func() error
	log     *logger.Logger
}

// New builds the services. Close releases them.
func New(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		Breakers: circuit.NewRegistry(),
		log:      logger.GetLogger("app.services"),
	}
	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.Recorder = metrics.NewRecorder(s.Registry)
	s.Metrics = adapters.NewMetricsAdapter(s.Recorder)

	st, err := s.openStore()
	if err != nil {
		return nil, err
	}
	s.Store = st
	s.closers = append(s.closers, st.Close)

	provider, err := s.openChain(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Chain = provider

	s.Pricer = pricing.Black76Pricer{}
	if cfg.Risk.CachePrices > 0 {
		s.PriceCache = pricing.NewCache(pricing.Black76Pricer{}, cfg.Risk.CachePrices)
		s.Pricer = s.PriceCache
	}
	s.Calculator = risk.NewCalculator(cfg.CalculatorConfig(), s.Pricer).WithMetrics(s.Metrics)

	return s, nil
}

func (s *Services) breaker(name string, cfg config.BreakerConfig) *circuit.Breaker {
	cc := cfg.CircuitConfig()
	cc.OnStateChange = func(name string, from, to circuit.State) {
		s.log.Warnf("Circuit %s moved from %s to %s", name, from, to)
	}
	return s.Breakers.Get(name, cc)
}

// GatewayBreaker guards the broker gateway
func (s *Services) GatewayBreaker() *circuit.Breaker {
	return s.breaker("gateway", s.Config.Broker.Breaker)
}

func (s *Services) openStore() (*store.Store, error) {
	switch s.Config.Store.Driver {
	case "", "memory":
		s.log.Infof("Using in-memory store")
		return store.New(store.NewMemoryBackend()), nil
	case "sqlite":
		if dir := filepath.Dir(s.Config.Store.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Internal(err, "failed to create store directory")
			}
		}
		backend, err := store.NewSQLiteBackend(s.Config.Store.Path)
		if err != nil {
			return nil, err
		}
		return store.New(backend), nil
	default:
		return nil, errors.InvalidArgumentf("unknown store driver %q", s.Config.Store.Driver)
	}
}

func (s *Services) openChain(ctx context.Context) (*chain.CachedProvider, error) {
	var cache chain.Cache
	switch s.Config.Chain.Cache {
	case "", "memory":
		cache = chain.NewMemoryCache()
	case "redis":
		rc, err := chain.NewRedisCache(ctx, chain.RedisConfig{
			Addr:     s.Config.Chain.Redis.Addr,
			Password: s.Config.Chain.Redis.Password,
			DB:       s.Config.Chain.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rc.Close)
		cache = rc
	default:
		return nil, errors.InvalidArgumentf("unknown chain cache %q", s.Config.Chain.Cache)
	}

	client := chain.NewNSEClient(s.Config.NSEConfig(), s.breaker("nse", s.Config.Chain.Breaker))
	return chain.NewCachedProvider(client, cache, s.Config.Chain.CacheTTL).WithMetrics(s.Metrics), nil
}

// StartBackground samples runtime and pricing cache metrics until ctx ends
func (s *Services) StartBackground(ctx context.Context) {
	interval := s.Config.Metrics.Interval
	if interval <= 0 {
		return
	}
	go s.Recorder.CollectSystemMetrics(ctx, interval)
	if s.PriceCache != nil {
		go s.Metrics.WatchPricingCache(ctx, s.PriceCache, interval)
	}
}

// EvaluateOpenPosition evaluates a stored position. Positions that are not
// open yield a nil report.
func (s *Services) EvaluateOpenPosition(ctx context.Context, id string) (*models.RiskReport, error) {
	position, err := s.Store.Position(ctx, id)
	if err != nil {
		return nil, err
	}
	if position.Status.Normalize() != models.PositionStatusOpen {
		return nil, nil
	}
	return s.Calculator.EvaluatePosition(ctx, position, s.Chain)
}

// Close releases the store and caches
func (s *Services) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
