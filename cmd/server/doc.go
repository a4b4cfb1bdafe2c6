// Package main is the entry point for the spantrail service.
//
// The service serves a small HTTP API, a gRPC health service and a Prometheus
// endpoint, and writes every request, span and event it sees as one logfmt
// line on stdout.
//
// Configuration comes from the environment (12-factor), see the config
// package for the full list. The common ones:
//
//	PORT, METRICS_PORT, HOST     listen addresses
//	GRPC_PORT, GRPC_ENABLED      gRPC health listener
//	APP_ENV                      local, dev, staging or prod
//	LOG_LEVEL                    minimum level of the logfmt stream
//	LOG_TARGET, LOG_ANSI         logfmt display options
//	HEALTHCHECK_UPSTREAMS        comma separated URLs checked by /healthcheck,
//	                             grpc://host:port for a gRPC health service
//
// Usage:
//
//	PORT=3000 METRICS_PORT=4000 ./server
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
