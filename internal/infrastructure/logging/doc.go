// Package logging provides the service's diagnostic logger using uber/zap.
//
// The logfmt request stream is produced by the tracing pipeline; this
// logger covers everything around it: startup, shutdown, registry
// conflicts and lines the sink dropped. It writes to stderr so the two
// never interleave on stdout.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output for human readability
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("server starting", zap.String("addr", cfg.Server.Addr()))
//	fmtLayer := logfmt.New(logfmt.OnDropped(logger.DropHandler(metrics.RecordDroppedLine)))
package logging
