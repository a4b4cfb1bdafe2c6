package logfmt

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

const (
	eventNewSpan   = "new_span"
	eventCloseSpan = "close_span"

	// bridgeTarget is the target of events forwarded from other loggers
	bridgeTarget = "log"
)

// Layer writes one logfmt line per span creation, event and span close
type Layer struct {
	tracing.NopLayer

	mu  sync.Mutex
	w   io.Writer
	buf bytes.Buffer

	displayTarget bool
	ansi          bool
	now           func() time.Time
	onDropped     func(err error)
}

// Option configures the layer
type Option func(*Layer)

// WithWriter sets the sink, os.Stdout by default
func WithWriter(w io.Writer) Option {
	return func(l *Layer) {
		l.w = w
	}
}

// WithTarget toggles target, module_path and location on events
func WithTarget(display bool) Option {
	return func(l *Layer) {
		l.displayTarget = display
	}
}

// WithANSI upper-cases and colours levels and colours field names
func WithANSI(enabled bool) Option {
	return func(l *Layer) {
		l.ansi = enabled
	}
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(l *Layer) {
		l.now = now
	}
}

// OnDropped is called with the sink error whenever a line cannot be
// written. It runs with the layer's lock held and must not log through it.
func OnDropped(fn func(err error)) Option {
	return func(l *Layer) {
		l.onDropped = fn
	}
}

// New creates a formatter layer
func New(opts ...Option) *Layer {
	l := &Layer{
		w:             os.Stdout,
		displayTarget: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type pair struct {
	key   string
	value string
}

// OnNewSpan writes the span_event=new_span line
func (l *Layer) OnNewSpan(attrs *tracing.Attributes, id tracing.ID, reg *tracing.Registry) {
	span := reg.MustSpan(id)
	l.writeSpanLine(span, eventNewSpan, storeFields(span, allowed(attrs.Metadata, spanFields)))
}

// OnClose writes the span_event=close_span line
func (l *Layer) OnClose(id tracing.ID, reg *tracing.Registry) {
	span := reg.MustSpan(id)
	l.writeSpanLine(span, eventCloseSpan, storeFields(span, closeFields.has))
}

// OnEvent writes the event's fields followed by the current span's context
func (l *Layer) OnEvent(ev *tracing.Event, reg *tracing.Registry) {
	var (
		current   tracing.ID
		inherited []pair
	)
	if ev.Current != 0 {
		if span, ok := reg.Span(ev.Current); ok {
			current = span.ID()
			inherited = storeFields(span, func(key string) bool {
				return !eventSkipFields.has(key)
			})
		}
	}

	meta := ev.Metadata

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Reset()
	l.writeLevel(meta.Level)
	for _, f := range ev.Fields {
		l.writeField(f)
	}
	if l.displayTarget {
		l.writeSource(meta)
	}
	l.writeTimestamp()
	if current != 0 {
		l.writeKey("span")
		l.buf.WriteString(current.String())
		l.writePairs(inherited)
	}
	l.flush()
}

func (l *Layer) writeSpanLine(span *tracing.SpanRef, event string, fields []pair) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Reset()
	l.writeLevel(span.Metadata().Level)
	l.writeKey("span_name")
	l.buf.WriteString(Quote(span.Name()))
	l.writeKey("span")
	l.buf.WriteString(span.ID().String())
	l.writeKey("span_event")
	l.buf.WriteString(event)
	l.writeTimestamp()
	l.writePairs(fields)
	l.flush()
}

func (l *Layer) writeLevel(level tracing.Level) {
	l.buf.WriteString(l.paintKey("level"))
	l.buf.WriteByte('=')
	l.buf.WriteString(l.paintLevel(level))
}

// writeKey writes " key="
func (l *Layer) writeKey(key string) {
	l.buf.WriteByte(' ')
	l.buf.WriteString(l.paintKey(key))
	l.buf.WriteByte('=')
}

func (l *Layer) writeField(f field.Field) {
	name := displayName(f.Name)
	v := f.Value
	switch v.Kind() {
	case field.KindInt, field.KindUint, field.KindBool:
		l.writeKey(name)
		l.buf.WriteString(v.Encode())
	case field.KindError:
		l.writeKey(name)
		l.buf.WriteString(field.EscapeDebug(Quote(v.DebugString())))
		l.writeKey(name + ".display")
		l.buf.WriteString(Quote(v.Encode()))
	default:
		l.writeKey(name)
		l.buf.WriteString(Quote(v.Encode()))
	}
}

func (l *Layer) writeSource(meta *tracing.Metadata) {
	if meta.Target != bridgeTarget {
		l.writeKey("target")
		l.buf.WriteByte('"')
		l.buf.WriteString(Quote(meta.Target))
		l.buf.WriteByte('"')
	}
	if meta.ModulePath != "" && meta.ModulePath != meta.Target {
		l.writeKey("module_path")
		l.buf.WriteByte('"')
		l.buf.WriteString(meta.ModulePath)
		l.buf.WriteByte('"')
	}
	if meta.File != "" && meta.Line > 0 {
		l.writeKey("location")
		l.buf.WriteByte('"')
		l.buf.WriteString(meta.File)
		l.buf.WriteByte(':')
		l.buf.WriteString(strconv.Itoa(meta.Line))
		l.buf.WriteByte('"')
	}
}

func (l *Layer) writeTimestamp() {
	l.writeKey("timestamp")
	l.buf.WriteString(l.now().UTC().Format(time.RFC3339Nano))
}

func (l *Layer) writePairs(pairs []pair) {
	for _, p := range pairs {
		l.writeKey(displayName(p.key))
		l.buf.WriteString(Quote(p.value))
	}
}

// flush writes the buffered line. Must hold l.mu.
func (l *Layer) flush() {
	l.buf.WriteByte('\n')
	if _, err := l.w.Write(l.buf.Bytes()); err != nil && l.onDropped != nil {
		l.onDropped(err)
	}
}

// allowed returns the key filter for a span line: everything for TRACE and
// DEBUG spans, otherwise only the names in set
func allowed(meta *tracing.Metadata, set fieldSet) func(key string) bool {
	if meta.Level.Verbose() {
		return func(string) bool { return true }
	}
	return set.has
}

// storeFields copies the span's store entries accepted by keep, in key order
func storeFields(span *tracing.SpanRef, keep func(key string) bool) []pair {
	var out []pair
	span.WithExtensions(func(ext *tracing.Extensions) {
		if ext.Store == nil {
			return
		}
		ext.Store.Range(func(k, v string) bool {
			if keep(k) {
				out = append(out, pair{key: k, value: v})
			}
			return true
		})
	})
	return out
}
