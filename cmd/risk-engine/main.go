package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rzzdr/options-risk-engine/config"
	"github.com/rzzdr/options-risk-engine/internal/app"
	"github.com/rzzdr/options-risk-engine/internal/kafka"
	"github.com/rzzdr/options-risk-engine/pkg/metrics"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

const (
	riskCalculationInterval = 5 * time.Minute
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
		logger.GetLogger("risk-engine.main").Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.LoggerConfig())
	log := logger.GetLogger("risk-engine.main")
	defer log.Sync()
	log.Infof("Starting %s risk engine", cfg.App.Name)

	if !cfg.Kafka.Enabled {
		log.Fatalf("Risk engine requires kafka.enabled")
	}

	// Create a context that will be canceled on program termination
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	services.StartBackground(ctx)

	var metricsServer *metrics.PrometheusServer
	if cfg.Metrics.Prometheus.Enabled {
		metricsServer = metrics.NewPrometheusServer(cfg.Metrics.Prometheus.Port, cfg.Metrics.Prometheus.Path, services.Registry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	kafkaClient, err := kafka.NewClient(cfg.KafkaClientConfig())
	if err != nil {
		log.Fatalf("Failed to create Kafka client: %v", err)
	}
	for _, topic := range []string{cfg.Kafka.Topics.PositionEvents, cfg.Kafka.Topics.RiskReports} {
		if err := kafkaClient.EnsureTopicExists(ctx, topic, 1, 1); err != nil {
			log.Warnf("Could not ensure topic %s: %v", topic, err)
		}
	}

	positionConsumer := kafkaClient.NewConsumer(cfg.Kafka.Topics.PositionEvents).WithMetrics(services.Metrics)
	riskProducer := kafkaClient.NewProducer(cfg.Kafka.Topics.RiskReports).WithMetrics(services.Metrics)

	evaluate := func(ctx context.Context, position *models.Position) {
		report, err := services.Calculator.EvaluatePosition(ctx, position, services.Chain)
		if err != nil {
			log.Errorf("Failed to evaluate position %s: %v", position.ID, err)
			return
		}
		if err := kafka.PublishRiskReport(ctx, riskProducer, report); err != nil {
			log.Errorf("Failed to publish risk report for %s: %v", position.ID, err)
			return
		}
		log.Infof("Published risk report for position %s: margin %.0f", position.ID, report.Margin.TotalMargin)
	}

	done := make(chan struct{}, 2)

	// Re-evaluate positions as they change
	go func() {
		defer func() { done <- struct{}{} }()
		log.Infof("Starting position events consumer")

		err := positionConsumer.ConsumeMessages(ctx, func(ctx context.Context, msg *kafka.Message) error {
			event, err := kafka.DecodePositionEvent(msg)
			if err != nil {
				log.Warnf("Skipping message: %v", err)
				return nil
			}
			if event.Type == models.PositionDeleted || event.Position.Status.Normalize() != models.PositionStatusOpen {
				log.Debugf("Ignoring %s event for position %s", event.Type, event.Position.ID)
				return nil
			}
			evaluate(ctx, event.Position)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			log.Errorf("Position consumer stopped: %v", err)
			cancel()
		}
	}()

	// Calculate risk periodically for all open positions
	go func() {
		defer func() { done <- struct{}{} }()
		ticker := time.NewTicker(riskCalculationInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Infof("Running periodic risk calculation for open positions")

				positions, err := services.Store.Positions(ctx, "")
				if err != nil {
					log.Errorf("Failed to list positions: %v", err)
					continue
				}
				open := positions[:0]
				for _, p := range positions {
					if p.Status.Normalize() == models.PositionStatusOpen {
						open = append(open, p)
					}
				}

				reports, err := services.Calculator.EvaluatePositions(ctx, open, services.Chain)
				if err != nil {
					log.Errorf("Periodic risk calculation failed: %v", err)
					continue
				}
				for _, report := range reports {
					if err := kafka.PublishRiskReport(ctx, riskProducer, report); err != nil {
						log.Errorf("Failed to publish risk report for %s: %v", report.PositionID, err)
					}
				}
				log.Infof("Published %d of %d risk reports", len(reports), len(open))
			}
		}
	}()

	log.Infof("Risk engine started")

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infof("Received signal %v, initiating shutdown", sig)
	case <-ctx.Done():
		log.Infof("Context cancelled, initiating shutdown")
	}
	cancel()
	<-done
	<-done

	if err := positionConsumer.Close(); err != nil {
		log.Errorf("Position consumer shutdown error: %v", err)
	}
	if err := riskProducer.Close(); err != nil {
		log.Errorf("Risk producer shutdown error: %v", err)
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Errorf("Metrics server shutdown error: %v", err)
		}
		shutdownCancel()
	}

	if err := services.Close(); err != nil {
		log.Errorf("Service shutdown error: %v", err)
	}

	log.Infof("Shutdown complete")
}
