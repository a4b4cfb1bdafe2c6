package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
	"github.com/GriffinCanCode/spantrail/internal/shared/id"
)

const (
	incomingTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	incomingParent  = "00-" + incomingTraceID + "-00f067aa0ba902b7-01"
)

func setupTestRouter(d *Dispatcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMiddleware(d))
	return router
}

func TestHTTPMiddlewareOpensRequestSpan(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)
	router := setupTestRouter(d)

	var inHandler *Span
	var handlerTrace string
	router.GET("/users/:id", func(c *gin.Context) {
		inHandler = SpanFromContext(c.Request.Context())
		handlerTrace = TraceID(c.Request.Context())
		c.Status(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodGet, "/users/7", nil)
	req.Header.Set("traceparent", incomingParent)
	req.Header.Set(id.RequestIDHeader, "01HZX")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.NotNil(t, inHandler)
	spanID := inHandler.ID()
	fields := rec.fields[spanID]

	assert.Equal(t, "GET", fields[HTTPMethodField].Encode())
	assert.Equal(t, "/users/:id", fields[HTTPRouteField].Encode())
	assert.Equal(t, "01HZX", fields[RequestIDField].Encode())
	assert.Equal(t, incomingTraceID, fields[TraceIDField].Encode())
	assert.NotEmpty(t, fields[HTTPClientIPField].Encode())
	assert.Equal(t, int64(http.StatusCreated), fields[HTTPStatusField].Int())
	assert.Equal(t, incomingTraceID, handlerTrace)

	want := fmt.Sprintf("00-%s-%016x-01", incomingTraceID, uint64(spanID))
	assert.Equal(t, want, w.Header().Get("traceparent"))

	assert.Equal(t, fmt.Sprintf("close %d", spanID), rec.transcript()[len(rec.transcript())-1])
	assert.Equal(t, 0, d.Registry().Len())
}

func TestHTTPMiddlewareMintsTraceID(t *testing.T) {
	rec := newRecordingLayer()
	router := setupTestRouter(NewDispatcher().With(rec))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	traceID := rec.fields[1][TraceIDField].Encode()
	assert.Len(t, traceID, 32)
	assert.NotEqual(t, "00000000000000000000000000000000", traceID)
	assert.Contains(t, w.Header().Get("traceparent"), traceID)

	_, hasRequestID := rec.fields[1][RequestIDField]
	assert.False(t, hasRequestID)
}

func TestHTTPMiddlewareReportsHandlerErrors(t *testing.T) {
	rec := newRecordingLayer()
	router := setupTestRouter(NewDispatcher().With(rec))
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("upstream timeout"))
		c.Status(http.StatusBadGateway)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, LevelError, ev.Metadata.Level)
	assert.Equal(t, ID(1), ev.Current)
	errField, ok := ev.Field(field.ErrorKey)
	require.True(t, ok)
	assert.Equal(t, "upstream timeout", errField.Value.Encode())
}

func TestHTTPMiddlewareUnmatchedRoute(t *testing.T) {
	rec := newRecordingLayer()
	router := setupTestRouter(NewDispatcher().With(rec))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	_, hasRoute := rec.fields[1][HTTPRouteField]
	assert.False(t, hasRoute)
	assert.Equal(t, int64(http.StatusNotFound), rec.fields[1][HTTPStatusField].Int())
}

func TestGRPCUnaryInterceptor(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)
	interceptor := GRPCUnaryInterceptor(d)

	md := metadata.Pairs("traceparent", incomingParent, id.RequestIDHeader, "req-1")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: "/users.v1.UserService/GetUser"}

	var inHandler *Span
	_, err := interceptor(ctx, "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		inHandler = SpanFromContext(ctx)
		return nil, status.Error(codes.NotFound, "no such user")
	})
	require.Error(t, err)
	require.NotNil(t, inHandler)

	fields := rec.fields[inHandler.ID()]
	assert.Equal(t, "/users.v1.UserService/GetUser", inHandler.Metadata().Name)
	assert.Equal(t, "grpc", fields["rpc.system"].Encode())
	assert.Equal(t, "users.v1.UserService", fields["rpc.service"].Encode())
	assert.Equal(t, "GetUser", fields["rpc.method"].Encode())
	assert.Equal(t, incomingTraceID, fields[TraceIDField].Encode())
	assert.Equal(t, "req-1", fields[RequestIDField].Encode())
	assert.Equal(t, "NotFound", fields["rpc.grpc.status_code"].Encode())

	require.Len(t, rec.events, 1)
	assert.Equal(t, LevelError, rec.events[0].Metadata.Level)
}

func TestGRPCStreamInterceptor(t *testing.T) {
	rec := newRecordingLayer()
	interceptor := GRPCStreamInterceptor(NewDispatcher().With(rec))
	info := &grpc.StreamServerInfo{FullMethod: "/logs.v1.LogService/Tail"}

	var inHandler *Span
	err := interceptor(nil, &fakeServerStream{ctx: context.Background()}, info,
		func(srv interface{}, stream grpc.ServerStream) error {
			inHandler = SpanFromContext(stream.Context())
			return nil
		})
	require.NoError(t, err)
	require.NotNil(t, inHandler)

	fields := rec.fields[inHandler.ID()]
	assert.True(t, fields["rpc.streaming"].Bool())
	assert.Equal(t, "OK", fields["rpc.grpc.status_code"].Encode())
	assert.Len(t, fields[TraceIDField].Encode(), 32)
	assert.Empty(t, rec.events)
}

func TestGRPCClientInterceptorPropagates(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)
	interceptor := GRPCClientInterceptor(d)

	ctx, parent := d.Start(context.Background(), LevelInfo, "caller")
	defer parent.End()

	var sent metadata.MD
	err := interceptor(ctx, "/users.v1.UserService/GetUser", nil, nil, nil,
		func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
			sent, _ = metadata.FromOutgoingContext(ctx)
			return nil
		})
	require.NoError(t, err)

	require.Len(t, sent.Get("traceparent"), 1)
	traceID := rec.fields[2][TraceIDField].Encode()
	assert.Contains(t, sent.Get("traceparent")[0], traceID)
	assert.Contains(t, rec.transcript(), "new /users.v1.UserService/GetUser id=2 parent=1")
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in, service, method string
	}{
		{"/pkg.Service/Method", "pkg.Service", "Method"},
		{"Method", "unknown", "Method"},
	}

	for _, tt := range tests {
		service, method := splitMethod(tt.in)
		assert.Equal(t, tt.service, service)
		assert.Equal(t, tt.method, method)
	}
}

func TestInjectHTTP(t *testing.T) {
	d := NewDispatcher()
	router := setupTestRouter(d)

	var outbound http.Header
	router.GET("/proxy", func(c *gin.Context) {
		outbound = http.Header{}
		InjectHTTP(c.Request.Context(), outbound)
	})

	req := httptest.NewRequest(http.MethodGet, "/proxy", nil)
	req.Header.Set("traceparent", incomingParent)
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, outbound.Get("traceparent"), incomingTraceID)
	assert.Empty(t, TraceID(context.Background()))
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context { return s.ctx }
