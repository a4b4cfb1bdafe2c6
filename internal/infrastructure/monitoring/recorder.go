package monitoring

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Label is a single metric dimension
type Label struct {
	Key   string
	Value string
}

// Labels is an ordered set of metric dimensions
type Labels []Label

// Sort orders labels by key, then by value
func (l Labels) Sort() {
	sort.Slice(l, func(i, j int) bool {
		if l[i].Key != l[j].Key {
			return l[i].Key < l[j].Key
		}
		return l[i].Value < l[j].Value
	})
}

// Keys returns the label keys in order
func (l Labels) Keys() []string {
	keys := make([]string, len(l))
	for i, label := range l {
		keys[i] = label.Key
	}
	return keys
}

// Values returns the label values in order
func (l Labels) Values() []string {
	values := make([]string, len(l))
	for i, label := range l {
		values[i] = label.Value
	}
	return values
}

func (l Labels) sorted() Labels {
	c := make(Labels, len(l))
	copy(c, l)
	c.Sort()
	return c
}

// Recorder receives derived metrics
type Recorder interface {
	IncrementCounter(name string, labels Labels)
	RecordHistogram(name string, value float64, labels Labels)
}

// DurationBuckets are the histogram buckets for *_duration_seconds metrics
var DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// BucketsFor returns DurationBuckets for *_duration_seconds metrics and the
// Prometheus defaults otherwise
func BucketsFor(name string) []float64 {
	if strings.HasSuffix(name, "_duration_seconds") {
		return DurationBuckets
	}
	return prometheus.DefBuckets
}

// PromRecorder records metrics into a Prometheus registry. Vectors are
// created on first use, one per metric name and label key set.
type PromRecorder struct {
	reg    prometheus.Registerer
	logger *zap.Logger

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	rejected   map[string]struct{}
}

// NewPromRecorder creates a recorder registering into reg
func NewPromRecorder(reg prometheus.Registerer, logger *zap.Logger) *PromRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromRecorder{
		reg:        reg,
		logger:     logger,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		rejected:   make(map[string]struct{}),
	}
}

// IncrementCounter adds one to the counter name
func (r *PromRecorder) IncrementCounter(name string, labels Labels) {
	labels = labels.sorted()
	vec := r.counterVec(name, labels.Keys())
	if vec == nil {
		return
	}
	counter, err := vec.GetMetricWithLabelValues(labels.Values()...)
	if err != nil {
		r.logger.Debug("dropping counter sample", zap.String("metric", name), zap.Error(err))
		return
	}
	counter.Inc()
}

// RecordHistogram observes value on the histogram name
func (r *PromRecorder) RecordHistogram(name string, value float64, labels Labels) {
	labels = labels.sorted()
	vec := r.histogramVec(name, labels.Keys())
	if vec == nil {
		return
	}
	observer, err := vec.GetMetricWithLabelValues(labels.Values()...)
	if err != nil {
		r.logger.Debug("dropping histogram sample", zap.String("metric", name), zap.Error(err))
		return
	}
	observer.Observe(value)
}

func (r *PromRecorder) counterVec(name string, keys []string) *prometheus.CounterVec {
	id := vecID(name, keys)

	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := r.counters[id]; ok {
		return vec
	}
	if _, ok := r.rejected[id]; ok {
		return nil
	}

	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: "Counter derived from " + name,
	}, keys)
	collector, ok := r.register(id, name, keys, vec)
	if !ok {
		return nil
	}
	existing, ok := collector.(*prometheus.CounterVec)
	if !ok {
		r.reject(id, name, keys, errors.New("name registered with a different type"))
		return nil
	}
	r.counters[id] = existing
	return existing
}

func (r *PromRecorder) histogramVec(name string, keys []string) *prometheus.HistogramVec {
	id := vecID(name, keys)

	r.mu.Lock()
	defer r.mu.Unlock()

	if vec, ok := r.histograms[id]; ok {
		return vec
	}
	if _, ok := r.rejected[id]; ok {
		return nil
	}

	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    "Histogram derived from " + name,
		Buckets: BucketsFor(name),
	}, keys)
	collector, ok := r.register(id, name, keys, vec)
	if !ok {
		return nil
	}
	existing, ok := collector.(*prometheus.HistogramVec)
	if !ok {
		r.reject(id, name, keys, errors.New("name registered with a different type"))
		return nil
	}
	r.histograms[id] = existing
	return existing
}

// register adds c to the registry, returning the collector already
// registered under the same descriptor if there is one. Must hold r.mu.
func (r *PromRecorder) register(id, name string, keys []string, c prometheus.Collector) (prometheus.Collector, bool) {
	err := r.reg.Register(c)
	if err == nil {
		return c, true
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return already.ExistingCollector, true
	}
	r.reject(id, name, keys, err)
	return nil, false
}

// reject remembers a vector that cannot be registered. Must hold r.mu.
func (r *PromRecorder) reject(id, name string, keys []string, err error) {
	r.rejected[id] = struct{}{}
	r.logger.Warn("metric rejected by registry",
		zap.String("metric", name),
		zap.Strings("labels", keys),
		zap.Error(err),
	)
}

func vecID(name string, keys []string) string {
	return name + "{" + strings.Join(keys, ",") + "}"
}
