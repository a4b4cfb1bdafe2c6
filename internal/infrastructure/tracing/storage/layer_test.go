package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// captureLayer snapshots stores as later layers would see them
type captureLayer struct {
	tracing.NopLayer
	closed map[tracing.ID]map[string]string
}

func (c *captureLayer) OnClose(id tracing.ID, reg *tracing.Registry) {
	c.closed[id] = snapshot(reg, id)
}

// dropStore removes the store right after creation
type dropStore struct {
	tracing.NopLayer
}

func (dropStore) OnNewSpan(_ *tracing.Attributes, id tracing.ID, reg *tracing.Registry) {
	reg.MustSpan(id).WithExtensions(func(ext *tracing.Extensions) {
		ext.Store = nil
	})
}

func snapshot(reg *tracing.Registry, id tracing.ID) map[string]string {
	out := map[string]string{}
	reg.MustSpan(id).WithExtensions(func(ext *tracing.Extensions) {
		if ext.Store == nil {
			out = nil
			return
		}
		ext.Store.Range(func(k, v string) bool {
			out[k] = v
			return true
		})
	})
	return out
}

func setup() (*tracing.Dispatcher, *fakeClock, *captureLayer) {
	clock := &fakeClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	capture := &captureLayer{closed: map[tracing.ID]map[string]string{}}
	d := tracing.NewDispatcher().
		With(New(WithClock(clock.Now))).
		With(capture)
	return d, clock, capture
}

func recoverErr(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	fn()
	return nil
}

func TestRootSpanRecordsInitialFields(t *testing.T) {
	d, _, _ := setup()

	span := d.NewSpan(context.Background(), tracing.LevelInfo, "handle",
		field.String("request_id", "r1"),
		field.Int("attempt", 2),
		field.Bool("cached", false),
	)
	defer span.End()

	assert.Equal(t, map[string]string{
		"request_id": "r1",
		"attempt":    "2",
		"cached":     "false",
	}, snapshot(d.Registry(), span.ID()))
}

func TestChildSnapshotsParentStore(t *testing.T) {
	d, _, _ := setup()
	reg := d.Registry()

	ctx, parent := d.Start(context.Background(), tracing.LevelInfo, "request",
		field.String("request_id", "r1"),
		field.String("trace_id", "abc"),
	)
	defer parent.End()

	ctx, child := d.Start(ctx, tracing.LevelInfo, "query", field.String("source", "db"))
	defer child.End()

	got := snapshot(reg, child.ID())
	assert.Equal(t, "r1", got["request_id"])
	assert.Equal(t, "abc", got["trace_id"])
	assert.Equal(t, "db", got["source"])
	assert.Equal(t, parent.ID().String(), got["parent_span"])

	parent.Record(field.String("late", "x"))
	child.Record(field.String("request_id", "r2"))

	assert.NotContains(t, snapshot(reg, child.ID()), "late")
	assert.Equal(t, "r1", snapshot(reg, parent.ID())["request_id"])

	_, grandchild := d.Start(ctx, tracing.LevelDebug, "row")
	defer grandchild.End()
	assert.Equal(t, child.ID().String(), snapshot(reg, grandchild.ID())["parent_span"])
	assert.Equal(t, "r2", snapshot(reg, grandchild.ID())["request_id"])
}

func TestRecordSkipsLogMarkers(t *testing.T) {
	d, _, _ := setup()

	span := d.NewSpan(context.Background(), tracing.LevelInfo, "bridge")
	defer span.End()

	span.Record(
		field.Debug("log.fields", map[string]int{"a": 1}),
		field.NamedError("log.error", errors.New("hidden")),
		field.String("log.target", "retryablehttp"),
		field.Debug("body", "hello"),
		field.Error(errors.New("boom")),
	)

	got := snapshot(d.Registry(), span.ID())
	assert.NotContains(t, got, "log.fields")
	assert.NotContains(t, got, "log.error")
	assert.Equal(t, "retryablehttp", got["log.target"])
	assert.Equal(t, `"hello"`, got["body"])
	assert.Equal(t, "boom", got["error"])
}

func TestFollowsFrom(t *testing.T) {
	d, _, _ := setup()
	reg := d.Registry()
	ctx := context.Background()

	producer := d.NewSpan(ctx, tracing.LevelInfo, "enqueue", field.String("trace_id", "t-1"))
	defer producer.End()
	anonymous := d.NewSpan(ctx, tracing.LevelInfo, "schedule")
	defer anonymous.End()

	consumer := d.NewSpan(ctx, tracing.LevelInfo, "dequeue")
	defer consumer.End()

	consumer.FollowsFrom(producer)
	got := snapshot(reg, consumer.ID())
	assert.Equal(t, "enqueue", got["follows_from"])
	assert.Equal(t, "t-1", got["follows_from.trace_id"])

	consumer.FollowsFrom(anonymous)
	got = snapshot(reg, consumer.ID())
	assert.Equal(t, "schedule", got["follows_from"])
	assert.Equal(t, anonymous.ID().Debug(), got["follows_from.trace_id"])
	assert.Regexp(t, `^Id\(\d+\)$`, got["follows_from.trace_id"])
}

func TestFollowsFromWithoutStoreIsNoop(t *testing.T) {
	clock := &fakeClock{}
	d := tracing.NewDispatcher().With(New(WithClock(clock.Now)))
	ctx := context.Background()

	// The second layer only strips stores of spans named "bare".
	d.With(&namedDrop{name: "bare"})

	bare := d.NewSpan(ctx, tracing.LevelInfo, "bare")
	defer bare.End()
	span := d.NewSpan(ctx, tracing.LevelInfo, "work")
	defer span.End()

	span.FollowsFrom(bare)
	assert.NotContains(t, snapshot(d.Registry(), span.ID()), "follows_from")

	assert.NotPanics(t, func() { bare.FollowsFrom(span) })
}

type namedDrop struct {
	tracing.NopLayer
	name string
}

func (n *namedDrop) OnNewSpan(attrs *tracing.Attributes, id tracing.ID, reg *tracing.Registry) {
	if attrs.Metadata.Name == n.name {
		dropStore{}.OnNewSpan(attrs, id, reg)
	}
}

func TestEventPromotesOnlyErrorField(t *testing.T) {
	d, _, _ := setup()

	ctx, span := d.Start(context.Background(), tracing.LevelInfo, "request")
	defer span.End()

	d.Info(ctx, "no error here", field.String("detail", "x"))
	assert.NotContains(t, snapshot(d.Registry(), span.ID()), "detail")

	d.Error(ctx, "query failed", field.Error(errors.New("conn refused")), field.String("detail", "x"))
	got := snapshot(d.Registry(), span.ID())
	assert.Equal(t, "conn refused", got["error"])
	assert.NotContains(t, got, "detail")
	assert.NotContains(t, got, "message")
}

func TestEventOutsideSpanIsIgnored(t *testing.T) {
	d, _, _ := setup()
	assert.NotPanics(t, func() {
		d.Error(context.Background(), "orphan", field.Error(errors.New("x")))
	})
}

func TestLatency(t *testing.T) {
	t.Run("measured from first entry", func(t *testing.T) {
		d, clock, capture := setup()

		span := d.NewSpan(context.Background(), tracing.LevelInfo, "work")
		clock.Advance(time.Second)
		span.Enter()
		clock.Advance(40 * time.Millisecond)
		span.Exit()
		span.Enter()
		clock.Advance(2*time.Millisecond + 900*time.Microsecond)
		span.End()

		assert.Equal(t, "42", capture.closed[span.ID()]["latency_ms"])
	})

	t.Run("zero when never entered", func(t *testing.T) {
		d, clock, capture := setup()

		span := d.NewSpan(context.Background(), tracing.LevelInfo, "idle")
		clock.Advance(time.Minute)
		span.End()

		assert.Equal(t, "0", capture.closed[span.ID()]["latency_ms"])
	})

	t.Run("written once", func(t *testing.T) {
		d, clock, capture := setup()

		_, span := d.Start(context.Background(), tracing.LevelInfo, "work")
		clock.Advance(5 * time.Millisecond)
		span.End()
		clock.Advance(5 * time.Millisecond)
		span.End()

		assert.Equal(t, "5", capture.closed[span.ID()]["latency_ms"])
		assert.Equal(t, 0, d.Registry().Len())
	})
}

func TestMissingStoreIsFatal(t *testing.T) {
	d := tracing.NewDispatcher().With(New()).With(dropStore{})
	ctx := context.Background()

	span := d.NewSpan(ctx, tracing.LevelInfo, "broken")
	err := recoverErr(func() { span.Record(field.String("k", "v")) })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreNotFound)

	err = recoverErr(span.End)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreNotFound)
}

func TestUnknownSpanIsFatal(t *testing.T) {
	l := New()
	reg := tracing.NewRegistry()

	err := recoverErr(func() { l.OnRecord(99, nil, reg) })
	require.Error(t, err)
	assert.ErrorIs(t, err, tracing.ErrSpanNotFound)
	assert.Contains(t, err.Error(), "Id(99)")
}
