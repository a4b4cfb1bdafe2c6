package config

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
)

var (
	ErrUnknownEnvironment = errors.New("unknown environment")
	ErrInvalidConfig      = errors.New("invalid config")
)

// Environment names the deployment the service runs in
type Environment string

const (
	EnvLocal   Environment = "local"
	EnvDev     Environment = "dev"
	EnvStaging Environment = "staging"
	EnvProd    Environment = "prod"
)

// Decode implements envconfig.Decoder
func (e *Environment) Decode(value string) error {
	switch env := Environment(strings.ToLower(strings.TrimSpace(value))); env {
	case EnvLocal, EnvDev, EnvStaging, EnvProd:
		*e = env
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEnvironment, value)
	}
}

// Trusted reports whether sensitive values may be logged as is
func (e Environment) Trusted() bool {
	return e == EnvLocal || e == EnvDev
}

// Authorization renders the Authorization header of h for logs: "null" when
// absent, the raw value in trusted environments, "<redacted>" otherwise.
func (e Environment) Authorization(h http.Header) string {
	values := h.Values("Authorization")
	switch {
	case len(values) == 0:
		return "null"
	case e.Trusted():
		return values[0]
	default:
		return "<redacted>"
	}
}

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Logging    LogConfig
	Metrics    MetricsConfig
	GRPC       GRPCConfig
	HTTPClient HTTPClientConfig
	RateLimit  RateLimitConfig
	Health     HealthConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string      `envconfig:"PORT" default:"3000"`
	Host        string      `envconfig:"HOST" default:"0.0.0.0"`
	MetricsPort string      `envconfig:"METRICS_PORT" default:"4000"`
	GRPCPort    string      `envconfig:"GRPC_PORT" default:"5000"`
	Environment Environment `envconfig:"APP_ENV" default:"local"`
	TimeoutMS   int         `envconfig:"SERVER_TIMEOUT_MS" default:"30000"`
}

// Addr returns the application listen address
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// MetricsAddr returns the metrics listen address
func (s ServerConfig) MetricsAddr() string {
	return net.JoinHostPort(s.Host, s.MetricsPort)
}

// GRPCAddr returns the gRPC listen address
func (s ServerConfig) GRPCAddr() string {
	return net.JoinHostPort(s.Host, s.GRPCPort)
}

// Timeout returns the per-request timeout, zero when disabled
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// LogConfig holds logging configuration. Level and the display options
// drive the logfmt stream; DiagLevel and Development drive the zap logger
// used for the service's own diagnostics.
type LogConfig struct {
	Level         tracing.Level `envconfig:"LOG_LEVEL" default:"info"`
	DisplayTarget bool          `envconfig:"LOG_TARGET" default:"true"`
	ANSI          bool          `envconfig:"LOG_ANSI" default:"false"`
	DiagLevel     string        `envconfig:"LOG_DIAG_LEVEL" default:"info"`
	Development   bool          `envconfig:"LOG_DEV" default:"false"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

// GRPCConfig holds gRPC listener configuration. The listener serves the
// standard health service.
type GRPCConfig struct {
	Enabled bool `envconfig:"GRPC_ENABLED" default:"true"`
}

// HTTPClientConfig holds outbound HTTP client configuration.
type HTTPClientConfig struct {
	PoolIdleTimeoutMS int `envconfig:"HTTP_CLIENT_POOL_IDLE_TIMEOUT_MS" default:"5000"`
	TimeoutMS         int `envconfig:"HTTP_CLIENT_TIMEOUT_MS" default:"30000"`
	RetryCount        int `envconfig:"HTTP_CLIENT_RETRY_COUNT" default:"3"`
	RetryWaitMinMS    int `envconfig:"HTTP_CLIENT_RETRY_WAIT_MIN_MS" default:"100"`
	RetryWaitMaxMS    int `envconfig:"HTTP_CLIENT_RETRY_WAIT_MAX_MS" default:"5000"`
	BreakerFailures   int `envconfig:"HTTP_CLIENT_BREAKER_FAILURES" default:"5"`
	BreakerTimeoutMS  int `envconfig:"HTTP_CLIENT_BREAKER_TIMEOUT_MS" default:"60000"`

	// RateLimitRPS caps outbound requests per second, zero for unlimited
	RateLimitRPS float64 `envconfig:"HTTP_CLIENT_RATE_LIMIT_RPS" default:"0"`
}

// PoolIdleTimeout returns the keep-alive timeout, zero when disabled
func (c HTTPClientConfig) PoolIdleTimeout() time.Duration {
	return time.Duration(c.PoolIdleTimeoutMS) * time.Millisecond
}

// Timeout returns the overall request timeout
func (c HTTPClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// RetryWaitMin returns the lower backoff bound
func (c HTTPClientConfig) RetryWaitMin() time.Duration {
	return time.Duration(c.RetryWaitMinMS) * time.Millisecond
}

// RetryWaitMax returns the upper backoff bound
func (c HTTPClientConfig) RetryWaitMax() time.Duration {
	return time.Duration(c.RetryWaitMaxMS) * time.Millisecond
}

// BreakerTimeout returns how long an open breaker rejects requests
func (c HTTPClientConfig) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutMS) * time.Millisecond
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// HealthConfig lists the upstreams the health check calls. grpc://host:port
// entries are checked through the gRPC health service.
type HealthConfig struct {
	Upstreams []string `envconfig:"HEALTHCHECK_UPSTREAMS"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects values the listeners and clients cannot use. Durations
// and counts may be zero but never negative.
func (c *Config) Validate() error {
	var errs []error
	nonNegative := func(name string, v int) {
		if v < 0 {
			errs = append(errs, fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidConfig, name, v))
		}
	}

	nonNegative("SERVER_TIMEOUT_MS", c.Server.TimeoutMS)
	nonNegative("HTTP_CLIENT_POOL_IDLE_TIMEOUT_MS", c.HTTPClient.PoolIdleTimeoutMS)
	nonNegative("HTTP_CLIENT_TIMEOUT_MS", c.HTTPClient.TimeoutMS)
	nonNegative("HTTP_CLIENT_RETRY_COUNT", c.HTTPClient.RetryCount)
	nonNegative("HTTP_CLIENT_RETRY_WAIT_MIN_MS", c.HTTPClient.RetryWaitMinMS)
	nonNegative("HTTP_CLIENT_RETRY_WAIT_MAX_MS", c.HTTPClient.RetryWaitMaxMS)
	nonNegative("HTTP_CLIENT_BREAKER_FAILURES", c.HTTPClient.BreakerFailures)
	nonNegative("HTTP_CLIENT_BREAKER_TIMEOUT_MS", c.HTTPClient.BreakerTimeoutMS)
	nonNegative("RATE_LIMIT_RPS", c.RateLimit.RequestsPerSecond)
	nonNegative("RATE_LIMIT_BURST", c.RateLimit.Burst)

	if c.HTTPClient.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("%w: HTTP_CLIENT_RATE_LIMIT_RPS must not be negative, got %g",
			ErrInvalidConfig, c.HTTPClient.RateLimitRPS))
	}
	if c.HTTPClient.RetryWaitMinMS > c.HTTPClient.RetryWaitMaxMS {
		errs = append(errs, fmt.Errorf("%w: HTTP_CLIENT_RETRY_WAIT_MIN_MS %d exceeds HTTP_CLIENT_RETRY_WAIT_MAX_MS %d",
			ErrInvalidConfig, c.HTTPClient.RetryWaitMinMS, c.HTTPClient.RetryWaitMaxMS))
	}
	return errors.Join(errs...)
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "3000",
			Host:        "0.0.0.0",
			MetricsPort: "4000",
			GRPCPort:    "5000",
			Environment: EnvLocal,
			TimeoutMS:   30000,
		},
		Logging: LogConfig{
			Level:         tracing.LevelInfo,
			DisplayTarget: true,
			DiagLevel:     "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		GRPC: GRPCConfig{
			Enabled: true,
		},
		HTTPClient: HTTPClientConfig{
			PoolIdleTimeoutMS: 5000,
			TimeoutMS:         30000,
			RetryCount:        3,
			RetryWaitMinMS:    100,
			RetryWaitMaxMS:    5000,
			BreakerFailures:   5,
			BreakerTimeoutMS:  60000,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
