package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/rzzdr/options-risk-engine/pkg/utils/logger"
)

// LoggingMiddleware logs request information
func LoggingMiddleware() gin.HandlerFunc {
	log := logger.GetLogger("api.middleware")

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		if status >= http.StatusInternalServerError {
			log.Warnf("%s %s [%d] %v", method, path, status, latency)
			return
		}
		log.Infof("%s %s [%d] %v", method, path, status, latency)
	}
}

// MetricsMiddleware captures API metrics, labelled by route template
func MetricsMiddleware(recorder RequestRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		recorder.RecordAPIRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing. An empty origin
// list allows any origin.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(allowed) == 0 || allowed["*"]:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthMiddleware requires "Authorization: Bearer <token>"
func AuthMiddleware(token string) gin.HandlerFunc {
	log := logger.GetLogger("api.auth")
	want := []byte(token)

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		got, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			log.Warnf("Rejected request to %s from %s", c.Request.URL.Path, c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// ErrorMiddleware catches panics and returns an error response
func ErrorMiddleware() gin.HandlerFunc {
	log := logger.GetLogger("api.error")

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Errorf("API panic recovered on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": fmt.Sprintf("Internal server error: %v", err),
				})
			}
		}()

		c.Next()
	}
}

// clientLimiters hands out one token bucket per client IP
type clientLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// idle buckets are dropped after this long
const limiterIdle = 10 * time.Minute

func (l *clientLimiters) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limiters) > 1024 {
		for key, cl := range l.limiters {
			if now.Sub(cl.lastSeen) > limiterIdle {
				delete(l.limiters, key)
			}
		}
	}

	cl, ok := l.limiters[ip]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimitMiddleware limits the number of requests per client
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	log := logger.GetLogger("api.ratelimit")
	if burst < 1 {
		burst = 1
	}
	limiters := &clientLimiters{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*clientLimiter),
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !limiters.get(clientIP, time.Now()).Allow() {
			log.Warnf("Rate limit exceeded for client: %s", clientIP)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
