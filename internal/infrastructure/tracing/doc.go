/*
Package tracing is the span runtime the observability layers hang off.

# Overview

A Dispatcher assigns span ids, keeps the live span table (Registry) and
notifies its layers of every span lifecycle step and every event. It knows
nothing about what the layers do with them: the per-span key/value store,
the logfmt lines and the derived metrics live in the storage, logfmt and
monitoring packages.

The current span travels in a context.Context. A span created from a context
carrying another span becomes its child.

# Layers and filters

Layers are called synchronously, in registration order, on the goroutine that
raised the notification. Each layer may carry filters; a span rejected by a
layer's filters is invisible to that layer, and events inside it are
attributed to the nearest ancestor the layer does see.

	d := tracing.NewDispatcher().
		With(storage.New()).
		With(logfmt.New(logfmt.WithTarget(true)), tracing.LevelFilter(tracing.LevelInfo)).
		With(monitoring.NewSpanLayer(rec), monitoring.SpanFilter())
	tracing.SetDefault(d)

# Usage

	ctx, span := tracing.Start(ctx, tracing.LevelInfo, "record.fetch_user",
		field.String("metric_label_region", "eu"))
	defer span.End()

	tracing.Info(ctx, "fetched", field.Int("rows", 3))

# Middleware

HTTPMiddleware and the gRPC interceptors open one span per request. The trace
id is taken from a W3C traceparent header (or gRPC metadata) when present and
minted otherwise, and is recorded as the span's trace_id field.

	router.Use(tracing.HTTPMiddleware(d))

	server := grpc.NewServer(
		grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(d)),
		grpc.StreamInterceptor(tracing.GRPCStreamInterceptor(d)),
	)
*/
package tracing
