package monitoring

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/storage"
)

// Span conventions understood by SpanLayer
const (
	MetricPrefix  = "record."
	LabelPrefix   = "metric_label_"
	MetricNameKey = "metric_name"

	SpanLabel   = "span_name"
	ResultLabel = "result"
	ResultOK    = "ok"
	ResultError = "error"

	defaultLabel = "label"
)

// SpanLayer turns the close of a "record."-prefixed span into a counter
// and a duration histogram, then deletes the span's store. It must be the
// last layer registered.
type SpanLayer struct {
	tracing.NopLayer
	recorder Recorder
}

// NewSpanLayer creates a metrics layer emitting into rec
func NewSpanLayer(rec Recorder) *SpanLayer {
	return &SpanLayer{recorder: rec}
}

// SpanFilter admits "record."-prefixed spans and all events
func SpanFilter() tracing.Filter {
	return tracing.SpanPrefixFilter(MetricPrefix)
}

// OnClose emits <name>_total and <name>_duration_seconds
func (l *SpanLayer) OnClose(id tracing.ID, reg *tracing.Registry) {
	span := reg.MustSpan(id)

	var (
		name    string
		seconds float64
		labels  Labels
	)
	span.WithExtensions(func(ext *tracing.Extensions) {
		if ext.Store == nil {
			panic(fmt.Errorf("%w: %s", storage.ErrStoreNotFound, id.Debug()))
		}
		name, seconds, labels = derive(span.Name(), ext.Store)
		ext.Store = nil
	})

	l.recorder.IncrementCounter(name+"_total", labels)
	l.recorder.RecordHistogram(name+"_duration_seconds", seconds, labels)
}

// derive computes the metric base name, elapsed seconds and sorted labels
// from a closed span's store
func derive(spanName string, store *field.Store) (string, float64, Labels) {
	short := strings.TrimPrefix(spanName, MetricPrefix)
	name := short

	var seconds float64
	if v, ok := store.Get(storage.LatencyKey); ok {
		if ms, err := strconv.ParseFloat(v, 64); err == nil {
			seconds = ms / 1000
		}
	}

	result := ResultOK
	labels := Labels{}
	store.Range(func(k, v string) bool {
		switch {
		case strings.HasPrefix(k, LabelPrefix):
			key := strings.TrimPrefix(k, LabelPrefix)
			if key == "" {
				key = defaultLabel
			}
			labels = append(labels, Label{Key: key, Value: v})
		case k == MetricNameKey:
			name = v
		case k == field.ErrorKey:
			result = ResultError
		}
		return true
	})

	labels = append(labels,
		Label{Key: SpanLabel, Value: short},
		Label{Key: ResultLabel, Value: result},
	)
	labels.Sort()

	return name, seconds, labels
}
