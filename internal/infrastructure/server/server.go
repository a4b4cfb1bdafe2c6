package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	apihttp "github.com/GriffinCanCode/spantrail/internal/api/http"
	"github.com/GriffinCanCode/spantrail/internal/api/middleware"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/config"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/grpcclient"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/logging"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/logfmt"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/storage"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Option configures a Server
type Option func(*options)

type options struct {
	logWriter io.Writer
	logger    *logging.Logger
}

// WithLogWriter sends the logfmt stream to w instead of stdout
func WithLogWriter(w io.Writer) Option {
	return func(o *options) {
		o.logWriter = w
	}
}

// WithLogger replaces the diagnostics logger built from the config
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Server runs the application, metrics and gRPC listeners
type Server struct {
	config     *config.Config
	logger     *logging.Logger
	metrics    *monitoring.Metrics
	dispatcher *tracing.Dispatcher
	upstreams  []*grpcclient.Client

	app        *http.Server
	metricsSrv *http.Server
	grpcSrv    *grpc.Server
	health     *health.Server
}

// New wires the pipeline, the routers and the listeners. The dispatcher it
// builds becomes the process default.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = newLogger(cfg.Logging); err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	metrics := monitoring.NewMetrics(logger.Logger)
	d := newDispatcher(cfg.Logging, logger, metrics, o.logWriter)
	tracing.SetDefault(d)

	s := &Server{
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		dispatcher: d,
	}

	client, checkers, err := s.healthClients()
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	handlers := apihttp.NewHandlers(d, client, cfg.Health.Upstreams, checkers...)
	s.app = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           appHandler(s.appRouter(handlers)),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if cfg.Metrics.Enabled {
		s.metricsSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr(),
			Handler:           s.metricsRouter(),
			ReadHeaderTimeout: readHeaderTimeout,
		}
	}
	if cfg.GRPC.Enabled {
		s.grpcSrv, s.health = newGRPCServer(d)
	}

	d.Info(context.Background(), fmt.Sprintf("starting with settings: %+v", *cfg),
		field.String("subject", "app_settings"),
		field.String("category", "init"))

	logger.Info("Server initialized",
		zap.String("addr", s.app.Addr),
		zap.Bool("metrics", cfg.Metrics.Enabled),
		zap.Bool("grpc", cfg.GRPC.Enabled),
		zap.Int("upstreams", len(cfg.Health.Upstreams)))

	return s, nil
}

// healthClients builds the clients the health check calls upstreams with:
// one checker per grpc:// upstream, and a shared HTTP client when any other
// upstream is configured
func (s *Server) healthClients() (*httpclient.Client, []apihttp.Option, error) {
	cfg := s.config
	var (
		client   *httpclient.Client
		checkers []apihttp.Option
	)
	for _, upstream := range cfg.Health.Upstreams {
		target, ok := grpcclient.Target(upstream)
		if !ok {
			continue
		}
		gc, err := grpcclient.New(grpcclient.Config{
			Target:          target,
			BreakerFailures: uint32(cfg.HTTPClient.BreakerFailures),
			BreakerTimeout:  cfg.HTTPClient.BreakerTimeout(),
		}, s.dispatcher)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create health client for %s: %w", upstream, err)
		}
		s.upstreams = append(s.upstreams, gc)
		checkers = append(checkers, apihttp.WithUpstreamChecker(upstream, gc))
	}

	if len(checkers) < len(cfg.Health.Upstreams) {
		var err error
		clientCfg := httpclient.ConfigFrom("health", cfg.HTTPClient, cfg.Server.Environment)
		if client, err = httpclient.New(clientCfg, s.dispatcher, s.metrics); err != nil {
			return nil, nil, fmt.Errorf("failed to create health client: %w", err)
		}
	}
	return client, checkers, nil
}

// newGRPCServer serves the standard health service. Every call is a span
// carrying the caller's trace id.
func newGRPCServer(d *tracing.Dispatcher) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(tracing.GRPCUnaryInterceptor(d)),
		grpc.ChainStreamInterceptor(tracing.GRPCStreamInterceptor(d)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	if cfg.Development {
		lc = logging.DevelopmentConfig()
	}
	lc.Level = cfg.DiagLevel
	return logging.New(lc)
}

// newDispatcher stacks the context store, the logfmt formatter and the
// metrics deriver. The store goes first so the other two see span data.
func newDispatcher(cfg config.LogConfig, logger *logging.Logger, metrics *monitoring.Metrics, w io.Writer) *tracing.Dispatcher {
	fmtOpts := []logfmt.Option{
		logfmt.WithTarget(cfg.DisplayTarget),
		logfmt.WithANSI(cfg.ANSI),
		logfmt.OnDropped(logger.DropHandler(metrics.RecordDroppedLine)),
	}
	if w != nil {
		fmtOpts = append(fmtOpts, logfmt.WithWriter(w))
	}

	return tracing.NewDispatcher().
		With(storage.New()).
		With(logfmt.New(fmtOpts...), tracing.LevelFilter(cfg.Level)).
		With(monitoring.NewSpanLayer(metrics.Recorder), monitoring.SpanFilter())
}

func (s *Server) appRouter(h *apihttp.Handlers) *gin.Engine {
	d := s.dispatcher
	env := s.config.Server.Environment

	router := gin.New()
	router.ContextWithFallback = true

	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(d))
	if s.config.Metrics.Enabled {
		router.Use(monitoring.Middleware(s.metrics))
	}
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if rl := s.config.RateLimit; rl.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", rl.RequestsPerSecond),
			zap.Int("burst", rl.Burst))
		router.Use(middleware.RateLimit(d, middleware.RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
		}))
	}

	// Recovery and Timeout sit inside the request loggers so a recovered
	// panic or a 408 is logged with the status the client saw
	recovery := middleware.Recovery(d)
	timeout := middleware.Timeout(s.config.Server.Timeout())

	// Health checks are polled constantly, keep them at DEBUG
	router.GET("/healthcheck", middleware.DebugRequestLogger(d), recovery, timeout, h.Healthcheck)

	logged := router.Group("/", middleware.RequestLogger(d, env), recovery, timeout)
	logged.GET("/ping", h.Ping)

	router.NoRoute(middleware.RequestLogger(d, env), recovery, timeout, h.NotFound)

	return router
}

// appHandler accepts cleartext HTTP/2 and gzips responses for clients that
// ask for it
func appHandler(router http.Handler) http.Handler {
	return h2c.NewHandler(gzhttp.GzipHandler(router), &http2.Server{})
}

func (s *Server) metricsRouter() *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(s.dispatcher))
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.NoRoute(apihttp.NewHandlers(s.dispatcher, nil, nil).NotFound)
	return router
}

// Dispatcher returns the pipeline the server logs through
func (s *Server) Dispatcher() *tracing.Dispatcher {
	return s.dispatcher
}

// Handler returns the application router
func (s *Server) Handler() http.Handler {
	return s.app.Handler
}

// MetricsHandler returns the metrics router, nil when metrics are disabled
func (s *Server) MetricsHandler() http.Handler {
	if s.metricsSrv == nil {
		return nil
	}
	return s.metricsSrv.Handler
}

type listener struct {
	name     string
	addr     string
	serve    func(net.Listener) error
	shutdown func(context.Context) error
	ln       net.Listener
}

func httpListener(name string, srv *http.Server) listener {
	return listener{
		name: name,
		addr: srv.Addr,
		serve: func(ln net.Listener) error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		shutdown: srv.Shutdown,
	}
}

// grpcListener drains in-flight calls on shutdown and cuts them off when ctx
// expires. Health watchers see NOT_SERVING first.
func grpcListener(addr string, srv *grpc.Server, hs *health.Server) listener {
	return listener{
		name: "grpc",
		addr: addr,
		serve: func(ln net.Listener) error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		},
		shutdown: func(ctx context.Context) error {
			hs.Shutdown()

			stopped := make(chan struct{})
			go func() {
				srv.GracefulStop()
				close(stopped)
			}()

			select {
			case <-stopped:
				return nil
			case <-ctx.Done():
				srv.Stop()
				return ctx.Err()
			}
		},
	}
}

// Run serves until ctx is cancelled or a listener fails, then shuts every
// server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listeners, err := s.listen()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l
		s.dispatcher.Info(gctx, fmt.Sprintf("%s server listening on %s", l.name, portOf(l.ln.Addr())),
			field.String("subject", "app_start"),
			field.String("category", "init"))

		g.Go(func() error {
			if err := l.serve(l.ln); err != nil {
				return fmt.Errorf("%s server: %w", l.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, l := range listeners {
			if err := l.shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("%s server shutdown: %w", l.name, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func (s *Server) listen() ([]listener, error) {
	servers := []listener{httpListener("app", s.app)}
	if s.metricsSrv != nil {
		servers = append(servers, httpListener("metrics", s.metricsSrv))
	}
	if s.grpcSrv != nil {
		servers = append(servers, grpcListener(s.config.Server.GRPCAddr(), s.grpcSrv, s.health))
	}

	for i := range servers {
		ln, err := net.Listen("tcp", servers[i].addr)
		if err != nil {
			for _, opened := range servers[:i] {
				opened.ln.Close()
			}
			return nil, fmt.Errorf("failed to listen for %s server on %s: %w", servers[i].name, servers[i].addr, err)
		}
		servers[i].ln = ln
	}
	return servers, nil
}

func portOf(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return strconv.Itoa(tcp.Port)
	}
	return addr.String()
}

// Close releases the upstream connections and flushes the diagnostics
// logger
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.upstreams {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close upstream %s: %w", c.Target(), err))
		}
	}
	// stderr returns EINVAL on sync for some terminals
	_ = s.logger.Sync()
	return errors.Join(errs...)
}
