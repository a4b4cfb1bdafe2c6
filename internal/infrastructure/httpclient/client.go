package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/config"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

// DefaultUserAgent is sent when Config.UserAgent is empty
const DefaultUserAgent = "spantrail-http/1.0"

// SpanName names the span opened around each outbound call
const SpanName = "client.http_request"

const (
	subjectField  = "subject"
	categoryField = "category"
)

var errRelativeURL = errors.New("relative url without base")

// Config configures one named outbound client
type Config struct {
	Name        string
	Environment config.Environment
	// BaseURL resolves relative request URLs
	BaseURL   string
	UserAgent string

	// Timeout bounds a single attempt
	Timeout         time.Duration
	PoolIdleTimeout time.Duration
	RetryCount      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration

	BreakerFailures uint32
	BreakerTimeout  time.Duration
	// RateLimitRPS caps requests per second, zero for unlimited
	RateLimitRPS float64
}

// ConfigFrom builds a client config from the service configuration
func ConfigFrom(name string, c config.HTTPClientConfig, env config.Environment) Config {
	return Config{
		Name:            name,
		Environment:     env,
		UserAgent:       DefaultUserAgent,
		Timeout:         c.Timeout(),
		PoolIdleTimeout: c.PoolIdleTimeout(),
		RetryCount:      c.RetryCount,
		RetryWaitMin:    c.RetryWaitMin(),
		RetryWaitMax:    c.RetryWaitMax(),
		BreakerFailures: uint32(c.BreakerFailures), // config.Validate rejects negatives
		BreakerTimeout:  c.BreakerTimeout(),
		RateLimitRPS:    c.RateLimitRPS,
	}
}

// Request describes one outbound call
type Request struct {
	Method string
	// URL is absolute or relative to the client's base URL
	URL    string
	Header http.Header
	Body   []byte
}

// Client is an outbound HTTP client. Requests go through a rate limiter
// and a circuit breaker, are retried with backoff on transient failures,
// and are logged, traced and measured through the pipeline.
type Client struct {
	name    string
	env     config.Environment
	d       *tracing.Dispatcher
	metrics *monitoring.Metrics

	resty   *resty.Client
	breaker *resilience.Breaker
	limiter *rate.Limiter
	base    *url.URL
}

// New creates a client. metrics may be nil.
func New(cfg Config, d *tracing.Dispatcher, metrics *monitoring.Metrics) (*Client, error) {
	c := &Client{
		name:    cfg.Name,
		env:     cfg.Environment,
		d:       d,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Inf, 0),
	}

	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url for client %s: %w", cfg.Name, err)
		}
		c.base = base
	}
	if cfg.RateLimitRPS > 0 {
		burst := int(cfg.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	settings := resilience.Settings{
		MaxRequests:   1,
		Timeout:       cfg.BreakerTimeout,
		OnStateChange: c.onStateChange,
	}
	if cfg.BreakerFailures > 0 {
		settings.ReadyToTrip = resilience.ConsecutiveFailures(cfg.BreakerFailures)
	}
	c.breaker = resilience.New(cfg.Name, settings)

	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.RetryCount
	retry.RetryWaitMin = cfg.RetryWaitMin
	retry.RetryWaitMax = cfg.RetryWaitMax
	retry.HTTPClient.Timeout = cfg.Timeout
	if transport, ok := retry.HTTPClient.Transport.(*http.Transport); ok {
		transport.IdleConnTimeout = cfg.PoolIdleTimeout
	}
	retry.Logger = tracing.NewLogBridge(d, "retryablehttp")
	retry.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retry.RequestLogHook = c.onAttempt
	retry.Backoff = c.backoff

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	c.resty = resty.NewWithClient(retry.StandardClient()).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetLogger(tracing.NewLogBridge(d, "resty"))

	return c, nil
}

// Name returns the client name used in logs and metric labels
func (c *Client) Name() string {
	return c.name
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Get sends a GET request
func (c *Client) Get(ctx context.Context, rawURL string) (*resty.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL})
}

// Do sends r. A response with any status is returned without error; err is
// set only when no response was received or the request was rejected
// before sending.
func (c *Client) Do(ctx context.Context, r Request) (*resty.Response, error) {
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	target, err := c.resolve(r.URL)
	if err != nil {
		return nil, fmt.Errorf("client %s: invalid url %q: %w", c.name, r.URL, err)
	}

	ctx, span := c.d.Start(ctx, tracing.LevelInfo, SpanName,
		field.String("client.name", c.name),
		field.String(tracing.HTTPMethodField, r.Method),
		field.String("client.request_path", target.Path))
	defer span.End()

	timer := monitoring.NewTimer(c.metrics, c.name, r.Method, target.Path)

	done, err := c.admit(ctx)
	if err != nil {
		c.logMiddlewareError(ctx, target, err)
		span.Record(field.String("client.status", monitoring.ClientStatusNone))
		timer.Stop(monitoring.ClientResultMiddlewareError, monitoring.ClientStatusNone)
		return nil, fmt.Errorf("client %s: %w", c.name, err)
	}

	req := c.resty.R().SetContext(ctx)
	for k, v := range r.Header {
		req.Header[k] = v
	}
	tracing.InjectHTTP(ctx, req.Header)
	if r.Body != nil {
		req.SetBody(r.Body)
	}

	resp, err := req.Execute(r.Method, target.String())
	if err != nil {
		done(false)
		status := monitoring.ClientStatusNone
		if resp != nil && resp.StatusCode() != 0 {
			status = strconv.Itoa(resp.StatusCode())
		}
		c.logError(ctx, target, err, status)
		span.Record(field.String("client.status", status))
		timer.Stop(monitoring.ClientResultError, status)
		return resp, err
	}

	status := resp.StatusCode()
	done(status < http.StatusInternalServerError)
	if status >= http.StatusBadRequest {
		c.logErrorResponse(ctx, target, resp)
	}
	span.Record(field.Int("client.status", int64(status)))
	timer.Stop(monitoring.ClientResult(status), strconv.Itoa(status))
	return resp, nil
}

func (c *Client) resolve(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if c.base != nil && !u.IsAbs() {
		u = c.base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return nil, errRelativeURL
	}
	return u, nil
}

// admit waits for the rate limiter and takes a breaker ticket
func (c *Client) admit(ctx context.Context) (func(bool), error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return c.breaker.Allow()
}

// onAttempt runs before every attempt the retrying transport makes
func (c *Client) onAttempt(_ retryablehttp.Logger, req *http.Request, attempt int) {
	if attempt > 0 {
		if c.metrics != nil {
			c.metrics.RecordClientRetry(c.name, req.Method, req.URL.Path)
		}
		return
	}
	c.logRequest(req)
}

// backoff logs each scheduled retry
func (c *Client) backoff(min, max time.Duration, attempt int, resp *http.Response) time.Duration {
	wait := retryablehttp.DefaultBackoff(min, max, attempt, resp)

	ctx := context.Background()
	if resp != nil && resp.Request != nil {
		ctx = resp.Request.Context()
	}
	c.d.Warn(ctx, "retrying call with backoff policy",
		field.String(subjectField, "client.retry"),
		field.String(categoryField, "client"),
		field.Int("retry_attempt", int64(attempt+1)),
		field.String("wait_duration", wait.String()))

	return wait
}

func (c *Client) onStateChange(name string, from, to resilience.State) {
	c.d.Warn(context.Background(), "circuit breaker state changed",
		field.String(subjectField, "client.breaker"),
		field.String(categoryField, "client"),
		field.String("client.name", name),
		field.String("from", from.String()),
		field.String("to", to.String()))
}

func (c *Client) logRequest(req *http.Request) {
	host := req.URL.Hostname()
	if host == "" {
		host = req.Host
	}
	userAgent := req.UserAgent()
	if userAgent == "" {
		userAgent = "null"
	}

	fields := []field.Field{
		field.String(subjectField, "client.request"),
		field.String(categoryField, "http.request"),
		field.String("client.method", req.Method),
		field.String("client.url", req.URL.String()),
		field.String("client.host", host),
		field.String("client.request_path", req.URL.Path),
	}
	if q := req.URL.RawQuery; q != "" {
		fields = append(fields, field.String("client.query_string", q))
	}
	fields = append(fields,
		field.String("client.user_agent", userAgent),
		field.String("client.version", req.Proto),
		field.String("client.authorization", c.env.Authorization(req.Header)))

	c.d.Info(req.Context(), "started processing client request", fields...)
}

func (c *Client) logErrorResponse(ctx context.Context, target *url.URL, resp *resty.Response) {
	body := resp.Body()
	if !utf8.Valid(body) {
		return
	}
	c.d.Warn(ctx, "error while processing client request",
		field.String(subjectField, "client.response"),
		field.String(categoryField, "http.response"),
		field.Debug("body", string(body)),
		field.Int("client.status", int64(resp.StatusCode())),
		field.Debug("client.response_headers", resp.Header()),
		field.String("client.url", target.String()),
		field.String("client.request_path", target.Path))
}

func (c *Client) logError(ctx context.Context, target *url.URL, err error, status string) {
	c.d.Warn(ctx, "error processing client request",
		field.String(subjectField, "client.response"),
		field.String(categoryField, "http.response"),
		field.Debug("client.error", err.Error()),
		field.String("client.request_path", target.Path),
		field.String("client.status", status),
		field.String("client.url", target.String()))
}

func (c *Client) logMiddlewareError(ctx context.Context, target *url.URL, err error) {
	c.d.Warn(ctx, "error processing client request within client middleware",
		field.String(subjectField, "client.response"),
		field.String(categoryField, "http.response"),
		field.Debug(field.ErrorKey, err.Error()),
		field.String("client.url", target.String()),
		field.String("client.request_path", target.Path),
		field.String("client.status", monitoring.ClientStatusNone))
}
