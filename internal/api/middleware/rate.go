package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
	"github.com/GriffinCanCode/spantrail/internal/shared/types"
)

// Per-IP limiters idle longer than clientTTL are dropped once the table
// grows past maxClients
const (
	maxClients = 10000
	clientTTL  = 3 * time.Minute
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
	}
}

// RateLimit creates a per-IP rate limiting middleware. Rejections are
// logged as WARN events.
func RateLimit(d *tracing.Dispatcher, cfg RateLimitConfig) gin.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
	)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if len(clients) >= maxClients {
			for key, cl := range clients {
				if now.Sub(cl.lastSeen) > clientTTL {
					delete(clients, key)
				}
			}
		}
		cl, exists := clients[ip]
		if !exists {
			cl = &client{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		limiter := cl.limiter
		mu.Unlock()

		if !limiter.Allow() {
			reject(d, c, "per_ip")
			return
		}

		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(d *tracing.Dispatcher, cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			reject(d, c, "global")
			return
		}
		c.Next()
	}
}

func reject(d *tracing.Dispatcher, c *gin.Context, scope string) {
	d.Warn(c.Request.Context(), "rate limit exceeded",
		field.String(SubjectField, "rate_limit"),
		field.String(CategoryField, "http.request"),
		field.String("scope", scope),
		field.String(tracing.HTTPClientIPField, c.ClientIP()))

	appErr := types.NewAppError(http.StatusTooManyRequests, "rate limit exceeded")
	c.AbortWithStatusJSON(appErr.StatusCode(), appErr.Response())
}
