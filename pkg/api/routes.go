package api

import (
	"github.com/gin-gonic/gin"

	"github.com/rzzdr/options-risk-engine/pkg/metrics"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	h := newHandlers(s.deps)
	r := s.engine

	r.Use(ErrorMiddleware(), LoggingMiddleware(), CORSMiddleware(s.config.CORSOrigins))
	if s.deps.Recorder != nil {
		r.Use(MetricsMiddleware(s.deps.Recorder))
	}

	r.GET("/health", h.HealthCheckHandler)
	if s.deps.Gatherer != nil {
		r.GET(s.config.MetricsPath, gin.WrapH(metrics.Handler(s.deps.Gatherer)))
	}
	if s.deps.Hub != nil {
		r.GET("/ws", gin.WrapF(s.deps.Hub.HandleWebSocket))
	}

	v1 := r.Group("/api/v1")
	if s.config.AuthToken != "" {
		v1.Use(AuthMiddleware(s.config.AuthToken))
	}
	if s.config.RateLimit > 0 {
		v1.Use(RateLimitMiddleware(s.config.RateLimit, s.config.RateBurst))
	}

	riskGroup := v1.Group("/risk")
	riskGroup.POST("/margin", h.MarginHandler)
	riskGroup.POST("/metrics", h.MetricsHandler)
	riskGroup.POST("/builder", h.BuilderHandler)

	derivatives := v1.Group("/derivatives")
	derivatives.POST("/price", h.PriceOptionHandler)
	derivatives.POST("/greeks", h.GreeksHandler)
	derivatives.POST("/implied-vol", h.ImpliedVolHandler)

	if s.deps.Chain != nil {
		v1.GET("/chain/:underlying", h.ChainHandler)
		v1.DELETE("/chain/:underlying/cache", h.InvalidateChainHandler)
	}

	v1.GET("/strategies", h.ListStrategiesHandler)
	v1.POST("/strategies", h.SaveStrategyHandler)
	v1.DELETE("/strategies", h.DeleteStrategyHandler)
	v1.PATCH("/strategies/meta", h.PatchStrategyMetaHandler)

	v1.GET("/positions", h.ListPositionsHandler)
	v1.POST("/positions", h.CreatePositionHandler)
	v1.PATCH("/positions/:id", h.UpdatePositionHandler)
	v1.DELETE("/positions/:id", h.DeletePositionHandler)
	v1.GET("/positions/:id/risk", h.PositionRiskHandler)

	v1.GET("/notes/strategy", h.GetStrategyNoteHandler)
	v1.PATCH("/notes/strategy", h.SetStrategyNoteHandler)
	v1.GET("/notes/position/:id", h.GetPositionNoteHandler)
	v1.PATCH("/notes/position/:id", h.SetPositionNoteHandler)

	v1.GET("/broker/config", h.GetGatewayConfigHandler)
	v1.PATCH("/broker/config", h.UpdateGatewayConfigHandler)
	if s.deps.Gateway != nil {
		v1.POST("/broker/funds", h.FundsHandler)
		v1.POST("/broker/basket-order", h.BasketOrderHandler)
	}

	s.log.Infof("API routes configured")
}
