/*
Package monitoring provides Prometheus metrics for the service and derives
metrics from annotated spans.

# Span-derived metrics

Any span whose name starts with "record." produces two metrics when it
closes. Store fields prefixed with "metric_label_" become labels, and
"metric_name" overrides the base name:

	ctx, span := d.Start(ctx, tracing.LevelInfo, "record.fetch_user",
		field.String("metric_label_source", "db"))
	defer span.End()

yields

	fetch_user_total{result="ok",source="db",span_name="fetch_user"}
	fetch_user_duration_seconds{result="ok",source="db",span_name="fetch_user"}

result is "error" when the span recorded an error field. Register
SpanLayer last, after the storage and formatter layers, because it deletes
the store.

# Usage

	metrics := monitoring.NewMetrics(logger)

	router.Use(monitoring.Middleware(metrics))
	metricsRouter.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "users", "GET", "/v1/users")
	// ... perform request ...
	timer.Stop(monitoring.ClientResultOK, "200")
*/
package monitoring
