// Package http provides the service's HTTP handlers.
//
// Endpoints:
//   - GET /healthcheck: {"msg":"Healthy"}, or a 503 JSON:API error when a
//     configured upstream fails its check. grpc:// upstreams are checked
//     through the standard gRPC health service
//   - GET /ping: empty 200, measured as ping_total / ping_duration_seconds
//   - fallback: 404 JSON:API error "Route does not exist!"
//
// Example Usage:
//
//	handlers := http.NewHandlers(dispatcher, client, cfg.Health.Upstreams)
//	router.GET("/ping", handlers.Ping)
//	router.NoRoute(handlers.NotFound)
package http
