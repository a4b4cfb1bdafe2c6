package tracing

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

// maxLayers is bounded by the width of the per-span enable mask
const maxLayers = 64

type registered struct {
	layer  Layer
	filter Filter
}

func (r registered) enabled(meta *Metadata) bool {
	return r.filter == nil || r.filter(meta)
}

// Dispatcher owns span identity and fans notifications out to layers
type Dispatcher struct {
	reg    *Registry
	layers []registered
}

// NewDispatcher creates a dispatcher with no layers
func NewDispatcher() *Dispatcher {
	return &Dispatcher{reg: NewRegistry()}
}

// With appends a layer. The layer only sees spans and events accepted by
// all of its filters. Layers must be registered before spans are created.
func (d *Dispatcher) With(layer Layer, filters ...Filter) *Dispatcher {
	if len(d.layers) == maxLayers {
		panic(fmt.Sprintf("tracing: at most %d layers", maxLayers))
	}
	d.layers = append(d.layers, registered{layer: layer, filter: allOf(filters)})
	return d
}

// Registry returns the live span table
func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

// Enabled reports whether any layer accepts meta
func (d *Dispatcher) Enabled(meta *Metadata) bool {
	return d.mask(meta) != 0
}

// NewSpan creates a span whose parent is the span carried by ctx. The span
// is not entered.
func (d *Dispatcher) NewSpan(ctx context.Context, level Level, name string, fields ...field.Field) *Span {
	return d.newSpan(ctx, callerMetadata(1, level, KindSpan, name), fields)
}

// Start creates and enters a span and returns a context carrying it
func (d *Dispatcher) Start(ctx context.Context, level Level, name string, fields ...field.Field) (context.Context, *Span) {
	span := d.newSpan(ctx, callerMetadata(1, level, KindSpan, name), fields)
	span.Enter()
	return ContextWithSpan(ctx, span), span
}

// Emit delivers an event. ev.Current is resolved per layer from the span
// carried by ctx.
func (d *Dispatcher) Emit(ctx context.Context, ev *Event) {
	ev.Metadata.Kind = KindEvent
	current := d.currentID(ctx)

	for i, l := range d.layers {
		if !l.enabled(ev.Metadata) {
			continue
		}
		scoped := *ev
		scoped.Current = d.nearestEnabled(current, i)
		l.layer.OnEvent(&scoped, d.reg)
	}
}

// Log emits an event with a message at level
func (d *Dispatcher) Log(ctx context.Context, level Level, msg string, fields ...field.Field) {
	d.emit(ctx, level, 1, msg, fields)
}

// Trace emits a TRACE event
func (d *Dispatcher) Trace(ctx context.Context, msg string, fields ...field.Field) {
	d.emit(ctx, LevelTrace, 1, msg, fields)
}

// Debug emits a DEBUG event
func (d *Dispatcher) Debug(ctx context.Context, msg string, fields ...field.Field) {
	d.emit(ctx, LevelDebug, 1, msg, fields)
}

// Info emits an INFO event
func (d *Dispatcher) Info(ctx context.Context, msg string, fields ...field.Field) {
	d.emit(ctx, LevelInfo, 1, msg, fields)
}

// Warn emits a WARN event
func (d *Dispatcher) Warn(ctx context.Context, msg string, fields ...field.Field) {
	d.emit(ctx, LevelWarn, 1, msg, fields)
}

// Error emits an ERROR event
func (d *Dispatcher) Error(ctx context.Context, msg string, fields ...field.Field) {
	d.emit(ctx, LevelError, 1, msg, fields)
}

func (d *Dispatcher) emit(ctx context.Context, level Level, skip int, msg string, fields []field.Field) {
	meta := callerMetadata(skip+1, level, KindEvent, "")
	if !d.Enabled(meta) {
		return
	}

	all := fields
	if msg != "" {
		all = make([]field.Field, 0, len(fields)+1)
		all = append(all, field.Message(msg))
		all = append(all, fields...)
	}
	d.Emit(ctx, &Event{Metadata: meta, Fields: all})
}

func (d *Dispatcher) newSpan(ctx context.Context, meta *Metadata, fields []field.Field) *Span {
	parent := d.currentID(ctx)
	ref := d.reg.insert(meta, parent, d.mask(meta))

	attrs := &Attributes{Metadata: meta, Parent: parent, Fields: fields}
	d.each(ref, func(l Layer) { l.OnNewSpan(attrs, ref.id, d.reg) })

	return &Span{d: d, id: ref.id, meta: meta}
}

func (d *Dispatcher) record(id ID, fields []field.Field) {
	ref, ok := d.reg.Span(id)
	if !ok {
		return
	}
	d.each(ref, func(l Layer) { l.OnRecord(id, fields, d.reg) })
}

func (d *Dispatcher) followsFrom(id, follows ID) {
	ref, ok := d.reg.Span(id)
	if !ok {
		return
	}
	d.each(ref, func(l Layer) { l.OnFollowsFrom(id, follows, d.reg) })
}

func (d *Dispatcher) enter(id ID) {
	if ref, ok := d.reg.Span(id); ok {
		d.each(ref, func(l Layer) { l.OnEnter(id, d.reg) })
	}
}

func (d *Dispatcher) exit(id ID) {
	if ref, ok := d.reg.Span(id); ok {
		d.each(ref, func(l Layer) { l.OnExit(id, d.reg) })
	}
}

func (d *Dispatcher) close(id ID) {
	ref, ok := d.reg.Span(id)
	if !ok {
		return
	}
	defer d.reg.remove(id)
	d.each(ref, func(l Layer) { l.OnClose(id, d.reg) })
}

func (d *Dispatcher) each(ref *SpanRef, fn func(l Layer)) {
	for i, l := range d.layers {
		if ref.mask&(1<<uint(i)) != 0 {
			fn(l.layer)
		}
	}
}

func (d *Dispatcher) mask(meta *Metadata) uint64 {
	var m uint64
	for i, l := range d.layers {
		if l.enabled(meta) {
			m |= 1 << uint(i)
		}
	}
	return m
}

// currentID returns the live span carried by ctx if it belongs to d
func (d *Dispatcher) currentID(ctx context.Context) ID {
	span := SpanFromContext(ctx)
	if span == nil || span.d != d {
		return 0
	}
	if _, ok := d.reg.Span(span.id); !ok {
		return 0
	}
	return span.id
}

// nearestEnabled walks up from id to the first span layer i is enabled for
func (d *Dispatcher) nearestEnabled(id ID, i int) ID {
	for id != 0 {
		ref, ok := d.reg.Span(id)
		if !ok {
			return 0
		}
		if ref.mask&(1<<uint(i)) != 0 {
			return id
		}
		id = ref.parent
	}
	return 0
}
