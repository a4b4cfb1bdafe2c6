// Package grpcclient dials gRPC upstreams for the health check. Calls go
// through the tracing client interceptor, so each one is a DEBUG span and
// carries the caller's traceparent in its metadata.
package grpcclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
)

// Scheme marks a health upstream as a gRPC target, as in grpc://users:5000
const Scheme = "grpc://"

var ErrNotServing = errors.New("upstream not serving")

// Target returns the dial target of a grpc:// upstream
func Target(upstream string) (string, bool) {
	if !strings.HasPrefix(upstream, Scheme) {
		return "", false
	}
	return strings.TrimPrefix(upstream, Scheme), true
}

// Config configures one upstream connection
type Config struct {
	Target string
	// Service is the name sent in health requests, empty for the whole server
	Service string

	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Client checks the standard health service of one upstream
type Client struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	target  string
	service string
	breaker *resilience.Breaker
}

// New creates a client. The connection is established lazily on the first
// call.
func New(cfg Config, d *tracing.Dispatcher) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                60 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithChainUnaryInterceptor(tracing.GRPCClientInterceptor(d)),
	}

	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.Target, err)
	}

	settings := resilience.Settings{
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
	}
	if cfg.BreakerFailures > 0 {
		settings.ReadyToTrip = resilience.ConsecutiveFailures(cfg.BreakerFailures)
	}

	return &Client{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		target:  cfg.Target,
		service: cfg.Service,
		breaker: resilience.New("grpc:"+cfg.Target, settings),
	}, nil
}

// Target returns the dial target
func (c *Client) Target() string {
	return c.target
}

// Check asks the upstream whether it is serving
func (c *Client) Check(ctx context.Context) error {
	resp, err := resilience.Do(c.breaker, func() (*healthpb.HealthCheckResponse, error) {
		return c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: c.service})
	})
	if err != nil {
		return err
	}
	if status := resp.GetStatus(); status != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", ErrNotServing, status)
	}
	return nil
}

// Close closes the connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
