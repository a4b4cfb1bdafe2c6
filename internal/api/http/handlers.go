package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
	"github.com/GriffinCanCode/spantrail/internal/shared/types"
)

// PingSpan is the span opened by Ping. Its prefix makes the metrics
// deriver emit ping_total and ping_duration_seconds.
const PingSpan = "record.ping"

var errNoClient = errors.New("no client configured")

// UpstreamChecker checks an upstream that is not reached over HTTP
type UpstreamChecker interface {
	Check(ctx context.Context) error
}

// Option configures Handlers
type Option func(*Handlers)

// WithUpstreamChecker checks upstream through c instead of an HTTP GET
func WithUpstreamChecker(upstream string, c UpstreamChecker) Option {
	return func(h *Handlers) {
		h.checkers[upstream] = c
	}
}

// Handlers contains all HTTP handlers
type Handlers struct {
	d         *tracing.Dispatcher
	client    *httpclient.Client
	upstreams []string
	checkers  map[string]UpstreamChecker
}

// NewHandlers creates a new handler set. client may be nil when every
// upstream has a checker.
func NewHandlers(d *tracing.Dispatcher, client *httpclient.Client, upstreams []string, opts ...Option) *Handlers {
	h := &Handlers{
		d:         d,
		client:    client,
		upstreams: upstreams,
		checkers:  make(map[string]UpstreamChecker),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Healthcheck reports service health. Every configured upstream must
// answer with a non-error status, or report serving when it has a checker.
func (h *Handlers) Healthcheck(c *gin.Context) {
	ctx := c.Request.Context()

	for _, upstream := range h.upstreams {
		if err := h.check(ctx, upstream); err != nil {
			appErr := types.NewAppError(http.StatusServiceUnavailable,
				fmt.Sprintf("upstream %s not healthy: %v", upstream, err))
			c.JSON(appErr.StatusCode(), appErr.Response())
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"msg": "Healthy"})
}

// Ping answers internal availability checks
func (h *Handlers) Ping(c *gin.Context) {
	_, span := h.d.Start(c.Request.Context(), tracing.LevelInfo, PingSpan,
		field.String("metric_label_method", c.Request.Method))
	defer span.End()

	c.Status(http.StatusOK)
}

// NotFound is the fallback for unmatched routes
func (h *Handlers) NotFound(c *gin.Context) {
	appErr := types.NewAppError(http.StatusNotFound, "Route does not exist!")
	c.JSON(appErr.StatusCode(), appErr.Response())
}

func (h *Handlers) check(ctx context.Context, upstream string) error {
	if c, ok := h.checkers[upstream]; ok {
		return c.Check(ctx)
	}
	if h.client == nil {
		return errNoClient
	}
	resp, err := h.client.Get(ctx, upstream)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("status %d", resp.StatusCode())
	}
	return nil
}
