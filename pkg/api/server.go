package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rzzdr/options-risk-engine/internal/pricing"
	"github.com/rzzdr/options-risk-engine/internal/risk"
	"github.com/rzzdr/options-risk-engine/internal/store"
	"github.com/rzzdr/options-risk-engine/internal/websocket"
	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// Config holds the configuration for the API server
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AuthToken enables bearer authentication on /api/v1 when set
	AuthToken   string
	RateLimit   float64
	RateBurst   int
	CORSOrigins []string
	MetricsPath string
}

// ChainService serves option chain snapshots
type ChainService interface {
	Snapshot(ctx context.Context, underlying string) (*models.ChainSnapshot, error)
	Fetch(ctx context.Context, underlying string, bypass bool) (*models.ChainSnapshot, error)
	Invalidate(ctx context.Context, underlying string) error
}

// Gateway places orders through the broker gateway
type Gateway interface {
	Funds(ctx context.Context, gw models.GatewaySettings) (*models.GatewayResponse, error)
	PlaceBasket(ctx context.Context, gw models.GatewaySettings, req models.BasketRequest) (*models.GatewayResponse, error)
}

// EventPublisher announces position changes
type EventPublisher interface {
	PublishPositionEvent(ctx context.Context, eventType models.PositionEventType, position *models.Position) error
}

// RequestRecorder observes served requests
type RequestRecorder interface {
	RecordAPIRequest(method, path string, status int, latency time.Duration)
}

// Dependencies are the services behind the handlers. Calculator and Store
// are required; the rest switch their routes off when nil.
type Dependencies struct {
	Calculator *risk.Calculator
	Pricer     pricing.Pricer
	Chain      ChainService
	Store      *store.Store
	Gateway    Gateway
	Events     EventPublisher
	Hub        *websocket.Hub
	Gatherer   prometheus.Gatherer
	Recorder   RequestRecorder
}

// Server represents the API server
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates a new API server
func NewServer(config Config, deps Dependencies) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if deps.Pricer == nil {
		deps.Pricer = pricing.Black76Pricer{}
	}

	gin.SetMode(gin.ReleaseMode)
	server := &Server{
		config: config,
		deps:   deps,
		engine: gin.New(),
		log:    logger.GetLogger("api.server"),
	}
	server.setupRoutes()
	return server
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the API server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.log.Infof("Starting API server on %s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the API server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		s.log.Infof("Stopping API server")
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
