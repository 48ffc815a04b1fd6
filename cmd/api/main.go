package main

import (
	"context"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rzzdr/options-risk-engine/config"
	"github.com/rzzdr/options-risk-engine/internal/app"
	"github.com/rzzdr/options-risk-engine/internal/broker"
	"github.com/rzzdr/options-risk-engine/internal/kafka"
	"github.com/rzzdr/options-risk-engine/internal/websocket"
	"github.com/rzzdr/options-risk-engine/pkg/api"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
)

func main() {
	flag.Parse()

	path := *configFile
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.GetLogger("api.main").Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.LoggerConfig())
	log := logger.GetLogger("api.main")
	defer log.Sync()
	log.Infof("Starting %s API service", cfg.App.Name)

	// Create a context that will be canceled on program termination
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	services.StartBackground(ctx)

	gateway := broker.NewClient(cfg.BrokerClientConfig(), services.GatewayBreaker()).WithMetrics(services.Metrics)

	deps := api.Dependencies{
		Calculator: services.Calculator,
		Pricer:     services.Pricer,
		Chain:      services.Chain,
		Store:      services.Store,
		Gateway:    gateway,
		Recorder:   services.Metrics,
	}
	if cfg.Metrics.Prometheus.Enabled {
		deps.Gatherer = services.Registry
	}

	var events *kafka.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaClient, err := kafka.NewClient(cfg.KafkaClientConfig())
		if err != nil {
			log.Fatalf("Failed to create Kafka client: %v", err)
		}
		topic := cfg.Kafka.Topics.PositionEvents
		if err := kafkaClient.EnsureTopicExists(ctx, topic, 1, 1); err != nil {
			log.Warnf("Could not ensure topic %s: %v", topic, err)
		}
		events = kafka.NewEventPublisher(kafkaClient.NewProducer(topic).WithMetrics(services.Metrics))
		deps.Events = events
		log.Infof("Publishing position events to %s", topic)
	}

	if cfg.Websocket.Enabled {
		hub := websocket.NewHub(websocket.EvaluatorFunc(services.EvaluateOpenPosition), cfg.Websocket.RefreshInterval).
			WithMetrics(services.Metrics)
		if origins := cfg.API.CORS.AllowedOrigins; len(origins) > 0 && !slices.Contains(origins, "*") {
			hub = hub.WithOriginCheck(allowOrigins(origins))
		}
		go hub.Run(ctx)
		deps.Hub = hub
	}

	apiServer := api.NewServer(
		api.Config{
			Host:         cfg.API.Host,
			Port:         cfg.API.Port,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
			AuthToken:    cfg.API.AuthToken,
			RateLimit:    cfg.API.RateLimit.RPS,
			RateBurst:    cfg.API.RateLimit.Burst,
			CORSOrigins:  cfg.API.CORS.AllowedOrigins,
			MetricsPath:  cfg.Metrics.Prometheus.Path,
		},
		deps,
	)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Errorf("API server error: %v", err)
			cancel()
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("Received signal %v, initiating shutdown", sig)
	case <-ctx.Done():
		log.Infof("Context cancelled, initiating shutdown")
	}

	timeout := cfg.API.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Errorf("API server shutdown error: %v", err)
	}
	cancel()

	if events != nil {
		if err := events.Close(); err != nil {
			log.Errorf("Event publisher shutdown error: %v", err)
		}
	}

	if err := services.Close(); err != nil {
		log.Errorf("Service shutdown error: %v", err)
	}

	log.Infof("Shutdown complete")
}

// allowOrigins accepts browser upgrades from the configured origins and
// non-browser clients that send no Origin header
func allowOrigins(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(origins, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
