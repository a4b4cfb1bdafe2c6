package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/config"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
	"github.com/GriffinCanCode/spantrail/internal/shared/id"
	"github.com/GriffinCanCode/spantrail/internal/shared/types"
)

// Field names shared by request and client logging
const (
	SubjectField  = "subject"
	CategoryField = "category"
)

type requestLogger struct {
	d       *tracing.Dispatcher
	env     config.Environment
	verbose bool
}

// RequestLogger logs every request at INFO and its response at a level
// chosen by status: DEBUG for 2xx, WARN for 5xx, INFO otherwise. Bodies are
// logged at DEBUG. The authorization header is only shown as is in local
// and dev.
func RequestLogger(d *tracing.Dispatcher, env config.Environment) gin.HandlerFunc {
	l := &requestLogger{d: d, env: env}
	return l.handle
}

// DebugRequestLogger is RequestLogger with the request line lowered to
// DEBUG and no request id or authorization.
func DebugRequestLogger(d *tracing.Dispatcher) gin.HandlerFunc {
	l := &requestLogger{d: d, verbose: true}
	return l.handle
}

func (l *requestLogger) handle(c *gin.Context) {
	body, err := readBody(c.Request)
	if err != nil {
		appErr := types.NewAppError(http.StatusBadRequest, fmt.Sprintf("failed to read Request body: %v", err))
		c.AbortWithStatusJSON(appErr.StatusCode(), appErr.Response())
		return
	}

	if l.verbose {
		l.logDebugRequest(c, body)
	} else {
		l.logRequest(c, body)
	}

	w := &bodyWriter{ResponseWriter: c.Writer}
	c.Writer = w
	c.Next()

	l.logResponse(c, w.body.Bytes())
}

func (l *requestLogger) logRequest(c *gin.Context, body []byte) {
	ctx := c.Request.Context()

	fields := []field.Field{
		field.String(SubjectField, "request"),
		field.String(CategoryField, "http.request"),
	}
	if reqID := c.GetHeader(id.RequestIDHeader); reqID != "" {
		fields = append(fields, field.String(tracing.RequestIDField, reqID))
	}
	fields = append(fields, field.String("request_path", c.Request.URL.Path))
	if q := c.Request.URL.RawQuery; q != "" {
		fields = append(fields, field.String("query_string", q))
	}
	fields = append(fields, field.String("authorization", l.env.Authorization(c.Request.Header)))

	l.d.Info(ctx, "started processing request", fields...)

	if utf8.Valid(body) {
		l.d.Debug(ctx, "",
			field.String(SubjectField, "request"),
			field.String(CategoryField, "http.request"),
			field.Debug("body", string(body)))
	}
}

func (l *requestLogger) logDebugRequest(c *gin.Context, body []byte) {
	ctx := c.Request.Context()
	path := c.Request.URL.Path

	fields := []field.Field{
		field.String(SubjectField, "request"),
		field.String(CategoryField, "http.request"),
		field.String("request_path", path),
	}
	if q := c.Request.URL.RawQuery; q != "" {
		fields = append(fields, field.String("query_string", q))
	}
	l.d.Debug(ctx, "started processing request", fields...)

	if utf8.Valid(body) {
		l.d.Debug(ctx, "",
			field.String(SubjectField, "request"),
			field.String(CategoryField, "http.request"),
			field.Debug("body", string(body)),
			field.String("request_path", path))
	}
}

func (l *requestLogger) logResponse(c *gin.Context, body []byte) {
	ctx := c.Request.Context()
	status := c.Writer.Status()

	l.d.Log(ctx, responseLevel(status), "finished processing request",
		field.String(SubjectField, "response"),
		field.String(CategoryField, "http.response"),
		field.Debug("status", status),
		field.Debug("response_headers", c.Writer.Header()))

	if utf8.Valid(body) {
		l.d.Debug(ctx, "",
			field.String(SubjectField, "response"),
			field.String(CategoryField, "http.response"),
			field.Debug("body", string(body)),
			field.String("request_path", c.Request.URL.Path))
	}
}

func responseLevel(status int) tracing.Level {
	switch {
	case status >= 200 && status < 300:
		return tracing.LevelDebug
	case status >= 500 && status < 600:
		return tracing.LevelWarn
	default:
		return tracing.LevelInfo
	}
}

// readBody drains the request body and puts a replayable copy back
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// bodyWriter keeps a copy of everything written to the response
type bodyWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
