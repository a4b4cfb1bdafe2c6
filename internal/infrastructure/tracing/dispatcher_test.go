package tracing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

// recordingLayer keeps a transcript of every notification
type recordingLayer struct {
	mu     sync.Mutex
	calls  []string
	fields map[ID]map[string]field.Value
	events []Event
	reg    *Registry
	live   []bool // registry membership seen during OnClose
}

func newRecordingLayer() *recordingLayer {
	return &recordingLayer{fields: make(map[ID]map[string]field.Value)}
}

func (l *recordingLayer) add(format string, args ...any) {
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *recordingLayer) set(id ID, fields []field.Field) {
	if l.fields[id] == nil {
		l.fields[id] = make(map[string]field.Value)
	}
	for _, f := range fields {
		l.fields[id][f.Name] = f.Value
	}
}

func (l *recordingLayer) OnNewSpan(attrs *Attributes, id ID, reg *Registry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reg = reg
	l.add("new %s id=%d parent=%d", attrs.Metadata.Name, id, attrs.Parent)
	l.set(id, attrs.Fields)
}

func (l *recordingLayer) OnRecord(id ID, fields []field.Field, _ *Registry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add("record %d", id)
	l.set(id, fields)
}

func (l *recordingLayer) OnFollowsFrom(id, follows ID, _ *Registry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add("follows %d->%d", id, follows)
}

func (l *recordingLayer) OnEvent(ev *Event, _ *Registry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg, _ := ev.Field(field.MessageKey)
	l.add("event %s current=%d", msg.Value.Encode(), ev.Current)
	l.events = append(l.events, *ev)
}

func (l *recordingLayer) OnEnter(id ID, _ *Registry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add("enter %d", id)
}

func (l *recordingLayer) OnExit(id ID, _ *Registry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add("exit %d", id)
}

func (l *recordingLayer) OnClose(id ID, reg *Registry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := reg.Span(id)
	l.live = append(l.live, ok)
	l.add("close %d", id)
}

func (l *recordingLayer) transcript() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func TestSpanLifecycle(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)
	ctx := context.Background()

	ctx, root := d.Start(ctx, LevelInfo, "root", field.String("subject", "user"))
	childCtx, child := d.Start(ctx, LevelInfo, "child")
	d.Info(childCtx, "inside child")
	child.Record(field.Int("rows", 3))
	child.End()
	d.Info(ctx, "inside root")
	root.End()

	assert.Equal(t, []string{
		"new root id=1 parent=0",
		"enter 1",
		"new child id=2 parent=1",
		"enter 2",
		"event inside child current=2",
		"record 2",
		"exit 2",
		"close 2",
		"event inside root current=1",
		"exit 1",
		"close 1",
	}, rec.transcript())

	assert.Equal(t, "user", rec.fields[1]["subject"].Encode())
	assert.Equal(t, int64(3), rec.fields[2]["rows"].Int())
	assert.Equal(t, []bool{true, true}, rec.live, "span must stay registered during OnClose")
	assert.Equal(t, 0, d.Registry().Len())
}

func TestSpanEndIsIdempotent(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)

	span := d.NewSpan(context.Background(), LevelInfo, "nested")
	span.Enter()
	span.Enter()
	span.End()
	span.End()
	span.Enter()
	span.Record(field.Bool("late", true))

	assert.Equal(t, []string{
		"new nested id=1 parent=0",
		"enter 1",
		"enter 1",
		"exit 1",
		"exit 1",
		"close 1",
	}, rec.transcript())
}

func TestSpanExitWithoutEnter(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)

	span := d.NewSpan(context.Background(), LevelInfo, "idle")
	span.Exit()
	span.End()

	assert.Equal(t, []string{"new idle id=1 parent=0", "close 1"}, rec.transcript())
}

func TestFollowsFrom(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)
	ctx := context.Background()

	_, a := d.Start(ctx, LevelInfo, "a")
	_, b := d.Start(ctx, LevelInfo, "b")
	b.FollowsFrom(a)
	b.FollowsFrom(nil)

	assert.Contains(t, rec.transcript(), "follows 2->1")
	a.End()
	b.End()
}

func TestEventMessageAndFields(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)

	d.Warn(context.Background(), "disk low", field.Int("free_mb", 12))
	d.Log(context.Background(), LevelError, "", field.Error(errors.New("boom")))

	require.Len(t, rec.events, 2)

	warn := rec.events[0]
	assert.Equal(t, LevelWarn, warn.Metadata.Level)
	assert.True(t, warn.Metadata.IsEvent())
	require.Len(t, warn.Fields, 2)
	assert.Equal(t, field.MessageKey, warn.Fields[0].Name)
	assert.Equal(t, "disk low", warn.Fields[0].Value.Encode())
	assert.Equal(t, ID(0), warn.Current)

	noMsg := rec.events[1]
	require.Len(t, noMsg.Fields, 1)
	assert.Equal(t, field.ErrorKey, noMsg.Fields[0].Name)
}

func TestCallerMetadata(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)

	d.Info(context.Background(), "where")

	require.Len(t, rec.events, 1)
	meta := rec.events[0].Metadata
	assert.Equal(t, "github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing", meta.ModulePath)
	assert.Equal(t, meta.ModulePath, meta.Target)
	assert.Equal(t, "tracing/dispatcher_test.go", meta.File)
	assert.Positive(t, meta.Line)
	assert.True(t, strings.HasPrefix(meta.Name, "event tracing/dispatcher_test.go:"))
}

func TestFilteredSpanIsInvisibleToLayer(t *testing.T) {
	all := newRecordingLayer()
	infoOnly := newRecordingLayer()
	d := NewDispatcher().
		With(all).
		With(infoOnly, LevelFilter(LevelInfo))
	ctx := context.Background()

	ctx, root := d.Start(ctx, LevelInfo, "root")
	ctx, debug := d.Start(ctx, LevelDebug, "chatty")
	d.Info(ctx, "hello")
	debug.End()
	root.End()

	assert.Contains(t, all.transcript(), "event hello current=2")
	assert.Contains(t, infoOnly.transcript(), "event hello current=1")
	assert.NotContains(t, strings.Join(infoOnly.transcript(), "\n"), "chatty")
	assert.NotContains(t, infoOnly.transcript(), "close 2")
}

func TestEventSkippedWhenNoLayerEnabled(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec, LevelFilter(LevelError))

	d.Debug(context.Background(), "quiet")
	d.Trace(context.Background(), "quieter")
	d.Error(context.Background(), "loud")

	assert.Equal(t, []string{"event loud current=0"}, rec.transcript())
	assert.False(t, d.Enabled(&Metadata{Level: LevelWarn, Kind: KindEvent}))
}

func TestSpanPrefixFilter(t *testing.T) {
	filter := SpanPrefixFilter("record.")

	assert.True(t, filter(&Metadata{Name: "record.fetch", Kind: KindSpan}))
	assert.False(t, filter(&Metadata{Name: "fetch", Kind: KindSpan}))
	assert.True(t, filter(&Metadata{Name: "anything", Kind: KindEvent}))
}

func TestForeignAndClosedParents(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)
	other := NewDispatcher()

	foreignCtx, foreign := other.Start(context.Background(), LevelInfo, "foreign")
	_, orphan := d.Start(foreignCtx, LevelInfo, "orphan")
	orphan.End()
	foreign.End()

	closedCtx, closed := d.Start(context.Background(), LevelInfo, "closed")
	closed.End()
	_, late := d.Start(closedCtx, LevelInfo, "late")
	late.End()

	transcript := rec.transcript()
	assert.Contains(t, transcript, "new orphan id=1 parent=0")
	assert.Contains(t, transcript, "new late id=3 parent=0")
}

func TestNilSpanIsSafe(t *testing.T) {
	var span *Span

	assert.NotPanics(t, func() {
		span.Enter()
		span.Exit()
		span.Record(field.Int("x", 1))
		span.FollowsFrom(nil)
		span.End()
	})
	assert.Equal(t, ID(0), span.ID())
	assert.Nil(t, span.Metadata())
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestMustSpanPanics(t *testing.T) {
	reg := NewRegistry()

	defer func() {
		err, ok := recover().(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrSpanNotFound)
		assert.Contains(t, err.Error(), "Id(9)")
	}()
	reg.MustSpan(9)
}

func TestTooManyLayers(t *testing.T) {
	d := NewDispatcher()
	for i := 0; i < maxLayers; i++ {
		d.With(NopLayer{})
	}
	assert.Panics(t, func() { d.With(NopLayer{}) })
}

func TestConcurrentSpans(t *testing.T) {
	rec := newRecordingLayer()
	d := NewDispatcher().With(rec)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, span := d.Start(context.Background(), LevelInfo, "worker")
			d.Info(ctx, "tick")
			span.End()
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, d.Registry().Len())
	assert.Len(t, rec.transcript(), 50*5)
}

func TestDefaultDispatcher(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	rec := newRecordingLayer()
	SetDefault(NewDispatcher().With(rec))

	ctx, span := Start(context.Background(), LevelInfo, "pkg")
	Trace(ctx, "t")
	Debug(ctx, "d")
	Info(ctx, "i")
	Warn(ctx, "w")
	Error(ctx, "e")
	span.End()

	assert.Equal(t, []string{
		"new pkg id=1 parent=0",
		"enter 1",
		"event t current=1",
		"event d current=1",
		"event i current=1",
		"event w current=1",
		"event e current=1",
		"exit 1",
		"close 1",
	}, rec.transcript())
	assert.Equal(t, "tracing/dispatcher_test.go", rec.events[0].Metadata.File)
}

func TestIDFormatting(t *testing.T) {
	assert.Equal(t, "42", ID(42).String())
	assert.Equal(t, "Id(42)", ID(42).Debug())
}
