package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// Version is reported by the health check
const Version = "1.0.0"

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	deps Dependencies
	log  *logger.Logger
}

func newHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		deps: deps,
		log:  logger.GetLogger("api.handlers"),
	}
}

// HealthCheckHandler handles health check requests
func (h *Handlers) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// StatusFor maps an application error to an HTTP status
func StatusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch errors.TypeOf(err) {
	case errors.ErrorTypeInvalidArgument:
		return http.StatusBadRequest
	case errors.ErrorTypeNotFound:
		return http.StatusNotFound
	case errors.ErrorTypeAlreadyExists:
		return http.StatusConflict
	case errors.ErrorTypePermissionDenied:
		return http.StatusForbidden
	case errors.ErrorTypeUnauthenticated:
		return http.StatusUnauthorized
	case errors.ErrorTypeNetwork:
		return http.StatusBadGateway
	case errors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrorTypeResourceExhausted:
		return http.StatusTooManyRequests
	case errors.ErrorTypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Errorf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// bind decodes the JSON body; a bad body is an InvalidArgument error
func bind(c *gin.Context, v interface{}) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return errors.InvalidArgumentf("invalid request body: %v", err)
	}
	return nil
}

// publish announces a position change; failures are logged and never fail the request
func (h *Handlers) publish(ctx context.Context, eventType models.PositionEventType, position *models.Position) {
	if h.deps.Events == nil || position == nil {
		return
	}
	if err := h.deps.Events.PublishPositionEvent(ctx, eventType, position); err != nil {
		h.log.Warnf("Failed to publish %s event for position %s: %v", eventType, position.ID, err)
	}
}
