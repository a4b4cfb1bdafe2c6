// Package middleware provides the HTTP middleware around the request span.
//
// Recommended order, outermost first:
//
//	router.Use(middleware.RequestID())
//	router.Use(tracing.HTTPMiddleware(d))
//	router.Use(monitoring.Middleware(metrics))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(d, middleware.DefaultRateLimitConfig()))
//	router.Use(middleware.RequestLogger(d, cfg.Server.Environment))
//	router.Use(middleware.Recovery(d))
//	router.Use(middleware.Timeout(cfg.Server.Timeout()))
//
// RequestID runs before the tracing middleware so the request span carries
// request_id. Recovery sits inside the logger and the metrics middleware so
// a recovered panic is still logged and counted as a 500. Timeout sits
// inside the logger for the same reason: a 408 is logged as a 408.
//
// Routes polled by infrastructure, such as the health check, take
// DebugRequestLogger in place of RequestLogger so they only show up at DEBUG.
package middleware
