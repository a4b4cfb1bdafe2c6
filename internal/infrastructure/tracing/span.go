package tracing

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

// ID identifies a live span. IDs are never zero.
type ID uint64

// String returns the decimal form used in log lines
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Debug returns the developer form, e.g. "Id(7)"
func (id ID) Debug() string {
	return "Id(" + id.String() + ")"
}

// Kind distinguishes spans from events
type Kind uint8

const (
	KindSpan Kind = iota
	KindEvent
)

// Metadata describes the callsite of a span or event
type Metadata struct {
	Name       string
	Level      Level
	Target     string
	ModulePath string
	File       string
	Line       int
	Kind       Kind
}

// IsSpan reports whether the metadata belongs to a span
func (m *Metadata) IsSpan() bool { return m.Kind == KindSpan }

// IsEvent reports whether the metadata belongs to an event
func (m *Metadata) IsEvent() bool { return m.Kind == KindEvent }

// Attributes are the values a span is created with
type Attributes struct {
	Metadata *Metadata
	// Parent is zero for root spans
	Parent ID
	Fields []field.Field
}

// Extensions is the per-span scratch space layers share. Both fields are
// optional.
type Extensions struct {
	Store *field.Store
	Start time.Time
}

// Span is the handle instrumentation holds on a live span. All methods are
// safe on a nil Span.
type Span struct {
	d      *Dispatcher
	id     ID
	meta   *Metadata
	depth  atomic.Int32
	closed atomic.Bool
}

// ID returns the span id
func (s *Span) ID() ID {
	if s == nil {
		return 0
	}
	return s.id
}

// Metadata returns the span's callsite metadata
func (s *Span) Metadata() *Metadata {
	if s == nil {
		return nil
	}
	return s.meta
}

// Enter marks the span as active
func (s *Span) Enter() {
	if s == nil || s.closed.Load() {
		return
	}
	s.depth.Add(1)
	s.d.enter(s.id)
}

// Exit marks the span as inactive
func (s *Span) Exit() {
	if s == nil || s.closed.Load() {
		return
	}
	if s.depth.Add(-1) < 0 {
		s.depth.Add(1)
		return
	}
	s.d.exit(s.id)
}

// Record adds or overwrites fields on the span
func (s *Span) Record(fields ...field.Field) {
	if s == nil || s.closed.Load() || len(fields) == 0 {
		return
	}
	s.d.record(s.id, fields)
}

// FollowsFrom links s causally to other without making other its parent
func (s *Span) FollowsFrom(other *Span) {
	if s == nil || other == nil || s.closed.Load() {
		return
	}
	s.d.followsFrom(s.id, other.id)
}

// End exits the span if it is still entered and closes it. Only the first
// call has an effect.
func (s *Span) End() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	for s.depth.Load() > 0 {
		s.depth.Add(-1)
		s.d.exit(s.id)
	}
	s.d.close(s.id)
}

// SpanRef is the registry entry for a live span
type SpanRef struct {
	id     ID
	meta   *Metadata
	parent ID
	mask   uint64

	mu  sync.Mutex
	ext Extensions
}

// ID returns the span id
func (r *SpanRef) ID() ID { return r.id }

// Name returns the span name
func (r *SpanRef) Name() string { return r.meta.Name }

// Metadata returns the span's callsite metadata
func (r *SpanRef) Metadata() *Metadata { return r.meta }

// Parent returns the parent id, zero for root spans
func (r *SpanRef) Parent() ID { return r.parent }

// WithExtensions runs fn while holding the span's extension lock
func (r *SpanRef) WithExtensions(fn func(ext *Extensions)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.ext)
}

func callerMetadata(skip int, level Level, kind Kind, name string) *Metadata {
	meta := &Metadata{Level: level, Kind: kind, Name: name}
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return meta
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		meta.ModulePath = packagePath(fn.Name())
		meta.Target = meta.ModulePath
	}
	meta.File = trimPath(file)
	meta.Line = line
	if meta.Name == "" {
		meta.Name = "event " + meta.File + ":" + strconv.Itoa(line)
	}
	return meta
}

// packagePath extracts the import path from a fully qualified function name
func packagePath(funcName string) string {
	slash := strings.LastIndexByte(funcName, '/')
	if dot := strings.IndexByte(funcName[slash+1:], '.'); dot >= 0 {
		return funcName[:slash+1+dot]
	}
	return funcName
}

// trimPath keeps the last directory and the file name
func trimPath(file string) string {
	idx := strings.LastIndexByte(file, '/')
	if idx == -1 {
		return file
	}
	idx = strings.LastIndexByte(file[:idx], '/')
	if idx == -1 {
		return file
	}
	return file[idx+1:]
}
