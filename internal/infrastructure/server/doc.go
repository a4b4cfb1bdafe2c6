// Package server wires the service together and runs it.
//
// New builds, in order:
//  1. The zap diagnostics logger and the Prometheus registry
//  2. The tracing dispatcher: context store, logfmt formatter, metrics deriver
//  3. The optional upstream clients used by the health check, HTTP for
//     plain URLs and gRPC for grpc:// targets
//  4. The application router, the metrics router and the gRPC server
//
// Application routes:
//
//	GET /ping         200, records the ping metric
//	GET /healthcheck  {"msg":"Healthy"}, logged at DEBUG only
//	*                 404 "Route does not exist!"
//
// Metrics routes:
//
//	GET /metrics      Prometheus exposition
//	*                 404
//
// gRPC service (GRPC_PORT, off with GRPC_ENABLED=false):
//
//	grpc.health.v1.Health  Check and Watch, one INFO span per call
//
// Run listens on every port and serves until the context is cancelled, then
// drains in-flight requests with http.Server.Shutdown and
// grpc.Server.GracefulStop.
//
// Example Usage:
//
//	cfg, err := config.Load()
//	srv, err := server.New(cfg)
//	defer srv.Close()
//	err = srv.Run(ctx)
package server
