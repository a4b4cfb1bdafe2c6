package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

var ErrStoreNotFound = errors.New("span store not found")

// Reserved keys written by the layer
const (
	TraceIDKey            = "trace_id"
	ParentSpanKey         = "parent_span"
	LatencyKey            = "latency_ms"
	FollowsFromKey        = "follows_from"
	FollowsFromTraceIDKey = "follows_from.trace_id"
)

// Layer maintains a field store for every span. A child starts with a copy
// of its parent's store, so request-scoped values recorded on an outer span
// show up on everything beneath it.
type Layer struct {
	tracing.NopLayer
	now func() time.Time
}

// Option configures the layer
type Option func(*Layer)

// WithClock overrides the time source used for latency
func WithClock(now func() time.Time) Option {
	return func(l *Layer) {
		l.now = now
	}
}

// New creates a storage layer
func New(opts ...Option) *Layer {
	l := &Layer{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnNewSpan seeds the store from the parent and records the initial fields
func (l *Layer) OnNewSpan(attrs *tracing.Attributes, id tracing.ID, reg *tracing.Registry) {
	span := reg.MustSpan(id)

	var store *field.Store
	if attrs.Parent != 0 {
		if parent, ok := reg.Span(attrs.Parent); ok {
			parent.WithExtensions(func(ext *tracing.Extensions) {
				if ext.Store != nil {
					store = ext.Store.Clone()
				}
			})
			if store != nil {
				store.Set(ParentSpanKey, parent.ID().String())
			}
		}
	}
	if store == nil {
		store = field.NewStore()
	}

	for _, f := range attrs.Fields {
		record(store, f)
	}

	span.WithExtensions(func(ext *tracing.Extensions) {
		ext.Store = store
	})
}

// OnRecord adds or overwrites fields
func (l *Layer) OnRecord(id tracing.ID, fields []field.Field, reg *tracing.Registry) {
	reg.MustSpan(id).WithExtensions(func(ext *tracing.Extensions) {
		store := mustStore(id, ext)
		for _, f := range fields {
			record(store, f)
		}
	})
}

// OnFollowsFrom records the name and trace of the span id follows from.
// Nothing is recorded unless both spans have a store.
func (l *Layer) OnFollowsFrom(id, follows tracing.ID, reg *tracing.Registry) {
	span := reg.MustSpan(id)
	followed, ok := reg.Span(follows)
	if !ok {
		return
	}

	var traceID string
	var linked bool
	followed.WithExtensions(func(ext *tracing.Extensions) {
		if ext.Store == nil {
			return
		}
		linked = true
		if v, ok := ext.Store.Get(TraceIDKey); ok {
			traceID = v
		} else {
			traceID = follows.Debug()
		}
	})
	if !linked {
		return
	}

	span.WithExtensions(func(ext *tracing.Extensions) {
		if ext.Store == nil {
			return
		}
		ext.Store.Set(FollowsFromKey, followed.Name())
		ext.Store.Set(FollowsFromTraceIDKey, traceID)
	})
}

// OnEvent copies an event's error field onto the current span
func (l *Layer) OnEvent(ev *tracing.Event, reg *tracing.Registry) {
	if ev.Current == 0 {
		return
	}
	errField, ok := ev.Field(field.ErrorKey)
	if !ok {
		return
	}
	span, ok := reg.Span(ev.Current)
	if !ok {
		return
	}
	span.WithExtensions(func(ext *tracing.Extensions) {
		if ext.Store != nil {
			record(ext.Store, errField)
		}
	})
}

// OnEnter stamps the first entry time. Re-entry keeps the first stamp.
func (l *Layer) OnEnter(id tracing.ID, reg *tracing.Registry) {
	span, ok := reg.Span(id)
	if !ok {
		return
	}
	span.WithExtensions(func(ext *tracing.Extensions) {
		if ext.Start.IsZero() {
			ext.Start = l.now()
		}
	})
}

// OnClose writes latency_ms, in whole milliseconds since the first entry
func (l *Layer) OnClose(id tracing.ID, reg *tracing.Registry) {
	reg.MustSpan(id).WithExtensions(func(ext *tracing.Extensions) {
		store := mustStore(id, ext)
		var elapsed int64
		if !ext.Start.IsZero() {
			elapsed = l.now().Sub(ext.Start).Milliseconds()
		}
		store.Set(LatencyKey, strconv.FormatInt(elapsed, 10))
	})
}

// record stores f unless it is a log-bridge marker
func record(store *field.Store, f field.Field) {
	if strings.HasPrefix(f.Name, field.LogPrefix) {
		switch f.Value.Kind() {
		case field.KindDebug, field.KindError:
			return
		}
	}
	store.Record(f)
}

func mustStore(id tracing.ID, ext *tracing.Extensions) *field.Store {
	if ext.Store == nil {
		panic(fmt.Errorf("%w: %s", ErrStoreNotFound, id.Debug()))
	}
	return ext.Store
}
