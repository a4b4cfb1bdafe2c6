package tracing

import (
	"context"
	"sync/atomic"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

// Event is a point-in-time occurrence, optionally inside a span
type Event struct {
	Metadata *Metadata
	Fields   []field.Field
	// Current is the innermost enclosing span the receiving layer is
	// enabled for, zero when there is none
	Current ID
}

// Field returns the first field named name
func (e *Event) Field(name string) (field.Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return field.Field{}, false
}

// Context keys for span propagation
type contextKey string

const spanKey contextKey = "span"

// ContextWithSpan returns a copy of ctx carrying span as the current span
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanKey, span)
}

// SpanFromContext returns the current span, nil if there is none
func SpanFromContext(ctx context.Context) *Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanKey).(*Span)
	return span
}

var defaultDispatcher atomic.Pointer[Dispatcher]

func init() {
	defaultDispatcher.Store(NewDispatcher())
}

// SetDefault replaces the package-level dispatcher
func SetDefault(d *Dispatcher) {
	defaultDispatcher.Store(d)
}

// Default returns the package-level dispatcher
func Default() *Dispatcher {
	return defaultDispatcher.Load()
}

// Start creates and enters a span on the default dispatcher
func Start(ctx context.Context, level Level, name string, fields ...field.Field) (context.Context, *Span) {
	d := Default()
	span := d.newSpan(ctx, callerMetadata(1, level, KindSpan, name), fields)
	span.Enter()
	return ContextWithSpan(ctx, span), span
}

// Trace emits a TRACE event on the default dispatcher
func Trace(ctx context.Context, msg string, fields ...field.Field) {
	Default().emit(ctx, LevelTrace, 1, msg, fields)
}

// Debug emits a DEBUG event on the default dispatcher
func Debug(ctx context.Context, msg string, fields ...field.Field) {
	Default().emit(ctx, LevelDebug, 1, msg, fields)
}

// Info emits an INFO event on the default dispatcher
func Info(ctx context.Context, msg string, fields ...field.Field) {
	Default().emit(ctx, LevelInfo, 1, msg, fields)
}

// Warn emits a WARN event on the default dispatcher
func Warn(ctx context.Context, msg string, fields ...field.Field) {
	Default().emit(ctx, LevelWarn, 1, msg, fields)
}

// Error emits an ERROR event on the default dispatcher
func Error(ctx context.Context, msg string, fields ...field.Field) {
	Default().emit(ctx, LevelError, 1, msg, fields)
}
