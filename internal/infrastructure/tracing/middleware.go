package tracing

import (
	"context"
	"encoding/binary"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
	"github.com/GriffinCanCode/spantrail/internal/shared/id"
)

// Span field names set by the middleware
const (
	TraceIDField      = "trace_id"
	RequestIDField    = "request_id"
	HTTPMethodField   = "http.method"
	HTTPHostField     = "http.host"
	HTTPRouteField    = "http.route"
	HTTPClientIPField = "http.client_ip"
	HTTPStatusField   = "http.status_code"
)

// W3C trace context
var propagator = propagation.TraceContext{}

// HTTPMiddleware creates Gin middleware that opens one INFO span per request.
// The trace id comes from an incoming traceparent header or is minted, and
// the span's own traceparent is returned in the response headers.
func HTTPMiddleware(d *Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, traceID := remoteTrace(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		fields := []field.Field{
			field.String(HTTPMethodField, c.Request.Method),
			field.String(HTTPHostField, c.Request.Host),
			field.String(HTTPClientIPField, c.ClientIP()),
			field.String(TraceIDField, traceID.String()),
		}
		if route := c.FullPath(); route != "" {
			fields = append(fields, field.String(HTTPRouteField, route))
		}
		if reqID := c.GetHeader(id.RequestIDHeader); reqID != "" {
			fields = append(fields, field.String(RequestIDField, reqID))
		}

		span := d.newSpan(ctx, callerMetadata(0, LevelInfo, KindSpan, "http.request"), fields)
		span.Enter()
		defer span.End()

		ctx = ContextWithSpan(withSpanContext(ctx, traceID, span), span)
		c.Request = c.Request.WithContext(ctx)
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer.Header()))

		c.Next()

		span.Record(field.Int(HTTPStatusField, int64(c.Writer.Status())))
		if last := c.Errors.Last(); last != nil {
			d.Error(ctx, "request failed", field.Error(last.Err))
		}
	}
}

// InjectHTTP writes the trace context carried by ctx into h
func InjectHTTP(ctx context.Context, h http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(h))
}

// TraceID returns the hex trace id carried by ctx, empty if there is none
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// GRPCUnaryInterceptor creates a gRPC unary interceptor that opens one span
// per call
func GRPCUnaryInterceptor(d *Dispatcher) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, span := d.startRPC(ctx, info.FullMethod, false)
		defer span.End()

		resp, err := handler(ctx, req)
		d.finishRPC(ctx, span, err)
		return resp, err
	}
}

// GRPCStreamInterceptor creates a gRPC stream interceptor that opens one span
// per stream
func GRPCStreamInterceptor(d *Dispatcher) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, span := d.startRPC(ss.Context(), info.FullMethod, true)
		defer span.End()

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		d.finishRPC(ctx, span, err)
		return err
	}
}

// tracedServerStream wraps grpc.ServerStream with the span's context
type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

// GRPCClientInterceptor creates a gRPC client interceptor that opens a DEBUG
// span per call and propagates the trace context in outgoing metadata
func GRPCClientInterceptor(d *Dispatcher) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		traceID := trace.SpanContextFromContext(ctx).TraceID()
		if !traceID.IsValid() {
			traceID = trace.TraceID(id.NewTraceID())
		}

		fields := append(rpcFields(method), field.String(TraceIDField, traceID.String()))
		span := d.newSpan(ctx, callerMetadata(0, LevelDebug, KindSpan, method), fields)
		span.Enter()
		defer span.End()

		ctx = ContextWithSpan(withSpanContext(ctx, traceID, span), span)

		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.MD{}
		}
		propagator.Inject(ctx, metadataCarrier(md))
		ctx = metadata.NewOutgoingContext(ctx, md)

		err := invoker(ctx, method, req, reply, cc, opts...)
		d.finishRPC(ctx, span, err)
		return err
	}
}

func (d *Dispatcher) startRPC(ctx context.Context, method string, streaming bool) (context.Context, *Span) {
	md, _ := metadata.FromIncomingContext(ctx)
	ctx, traceID := remoteTrace(ctx, metadataCarrier(md))

	fields := append(rpcFields(method), field.String(TraceIDField, traceID.String()))
	if streaming {
		fields = append(fields, field.Bool("rpc.streaming", true))
	}
	if vals := md.Get(id.RequestIDHeader); len(vals) > 0 {
		fields = append(fields, field.String(RequestIDField, vals[0]))
	}

	span := d.newSpan(ctx, callerMetadata(1, LevelInfo, KindSpan, method), fields)
	span.Enter()
	return ContextWithSpan(withSpanContext(ctx, traceID, span), span), span
}

func (d *Dispatcher) finishRPC(ctx context.Context, span *Span, err error) {
	span.Record(field.String("rpc.grpc.status_code", status.Code(err).String()))
	if err != nil {
		d.Error(ctx, "rpc failed", field.Error(err))
	}
}

func rpcFields(fullMethod string) []field.Field {
	service, method := splitMethod(fullMethod)
	return []field.Field{
		field.String("rpc.system", "grpc"),
		field.String("rpc.service", service),
		field.String("rpc.method", method),
	}
}

// splitMethod splits "/pkg.Service/Method"
func splitMethod(fullMethod string) (string, string) {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "unknown", name
}

// remoteTrace extracts the caller's trace context, minting a trace id when
// none was sent
func remoteTrace(ctx context.Context, carrier propagation.TextMapCarrier) (context.Context, trace.TraceID) {
	ctx = propagator.Extract(ctx, carrier)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return ctx, sc.TraceID()
	}
	return ctx, trace.TraceID(id.NewTraceID())
}

// withSpanContext makes span the W3C parent for anything propagated from ctx
func withSpanContext(ctx context.Context, traceID trace.TraceID, span *Span) context.Context {
	var sid trace.SpanID
	binary.BigEndian.PutUint64(sid[:], uint64(span.ID()))
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(ctx, sc)
}

// metadataCarrier adapts gRPC metadata to a propagation carrier
type metadataCarrier metadata.MD

func (m metadataCarrier) Get(key string) string {
	if vals := metadata.MD(m).Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (m metadataCarrier) Set(key, value string) {
	metadata.MD(m).Set(key, value)
}

func (m metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
