package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metric names used by dashboards and alerts
const (
	HTTPRequestsTotal         = "http_requests_total"
	HTTPRequestDuration       = "http_request_duration_seconds"
	ClientHTTPRequestsTotal   = "client_http_requests_total"
	ClientHTTPRequestDuration = "client_http_request_duration_seconds"
	ClientHTTPRequestsRetry   = "client_http_requests_retry_total"
)

// Client request results
const (
	ClientResultOK              = "ok"
	ClientResultError           = "error"
	ClientResultMiddlewareError = "middleware_error"
	ClientStatusNone            = "none"
)

// Metrics holds the service's Prometheus registry and collectors
type Metrics struct {
	Registry *prometheus.Registry
	Recorder *PromRecorder

	// DroppedLines counts log lines the sink refused
	DroppedLines prometheus.Counter
	Uptime       prometheus.GaugeFunc

	startTime time.Time
}

// NewMetrics creates a registry with the Go and process collectors, the
// service collectors and a recorder for derived metrics
func NewMetrics(logger *zap.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		Registry:  reg,
		Recorder:  NewPromRecorder(reg, logger),
		startTime: time.Now(),

		DroppedLines: factory.NewCounter(prometheus.CounterOpts{
			Name: "logfmt_dropped_lines_total",
			Help: "Log lines that could not be written to the sink",
		}),
	}
	m.Uptime = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "uptime_seconds",
		Help: "Seconds since the service started",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := Labels{
		{Key: "method", Value: method},
		{Key: "request_path", Value: path},
		{Key: "status", Value: strconv.Itoa(status)},
	}
	m.Recorder.IncrementCounter(HTTPRequestsTotal, labels)
	m.Recorder.RecordHistogram(HTTPRequestDuration, duration.Seconds(), labels)
}

// RecordClientRequest records one outbound request
func (m *Metrics) RecordClientRequest(client, method, path, result, status string, duration time.Duration) {
	labels := Labels{
		{Key: "client", Value: client},
		{Key: "method", Value: method},
		{Key: "request_path", Value: path},
		{Key: "result", Value: result},
		{Key: "status", Value: status},
	}
	m.Recorder.IncrementCounter(ClientHTTPRequestsTotal, labels)
	m.Recorder.RecordHistogram(ClientHTTPRequestDuration, duration.Seconds(), labels)
}

// RecordClientRetry counts one retried outbound attempt
func (m *Metrics) RecordClientRetry(client, method, path string) {
	m.Recorder.IncrementCounter(ClientHTTPRequestsRetry, Labels{
		{Key: "client", Value: client},
		{Key: "method", Value: method},
		{Key: "request_path", Value: path},
	})
}

// RecordDroppedLine counts a log line lost to a sink error
func (m *Metrics) RecordDroppedLine(error) {
	m.DroppedLines.Inc()
}

// ClientResult classifies an outbound response status
func ClientResult(status int) string {
	if status >= 200 && status <= 299 {
		return ClientResultOK
	}
	return ClientResultError
}
