package tracing

import (
	"context"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

// BridgeTarget is the metadata target of events forwarded from other logging APIs
const BridgeTarget = "log"

// LogBridge adapts library loggers to the dispatcher. It satisfies both
// retryablehttp.LeveledLogger and resty.Logger. Each message becomes an
// event with target "log" and a log.target field naming the source.
type LogBridge struct {
	d      *Dispatcher
	source string
}

// NewLogBridge creates a bridge for the named library
func NewLogBridge(d *Dispatcher, source string) *LogBridge {
	return &LogBridge{d: d, source: source}
}

func (b *LogBridge) Error(msg string, keysAndValues ...interface{}) {
	b.log(LevelError, msg, keysAndValues)
}

func (b *LogBridge) Warn(msg string, keysAndValues ...interface{}) {
	b.log(LevelWarn, msg, keysAndValues)
}

func (b *LogBridge) Info(msg string, keysAndValues ...interface{}) {
	b.log(LevelInfo, msg, keysAndValues)
}

func (b *LogBridge) Debug(msg string, keysAndValues ...interface{}) {
	b.log(LevelDebug, msg, keysAndValues)
}

func (b *LogBridge) Errorf(format string, v ...interface{}) {
	b.logf(LevelError, format, v)
}

func (b *LogBridge) Warnf(format string, v ...interface{}) {
	b.logf(LevelWarn, format, v)
}

func (b *LogBridge) Debugf(format string, v ...interface{}) {
	b.logf(LevelDebug, format, v)
}

func (b *LogBridge) logf(level Level, format string, v []interface{}) {
	meta := b.metadata(level)
	if !b.d.Enabled(meta) {
		return
	}
	msg := strings.TrimRight(fmt.Sprintf(format, v...), "\n")
	b.d.Emit(context.Background(), &Event{Metadata: meta, Fields: []field.Field{
		field.Message(msg),
		field.String("log.target", b.source),
	}})
}

func (b *LogBridge) log(level Level, msg string, kv []interface{}) {
	meta := b.metadata(level)
	if !b.d.Enabled(meta) {
		return
	}

	fields := make([]field.Field, 0, 2+(len(kv)+1)/2)
	fields = append(fields, field.Message(msg), field.String("log.target", b.source))
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 == len(kv) {
			fields = append(fields, field.Debug("extra", kv[i]))
			break
		}
		fields = append(fields, kvField(key, kv[i+1]))
	}
	b.d.Emit(context.Background(), &Event{Metadata: meta, Fields: fields})
}

func (b *LogBridge) metadata(level Level) *Metadata {
	return &Metadata{
		Name:   "log event",
		Level:  level,
		Target: BridgeTarget,
		Kind:   KindEvent,
	}
}

func kvField(key string, v interface{}) field.Field {
	switch val := v.(type) {
	case string:
		return field.String(key, val)
	case error:
		return field.NamedError(key, val)
	case fmt.Stringer:
		return field.String(key, val.String())
	case int:
		return field.Int(key, int64(val))
	case int64:
		return field.Int(key, val)
	case uint64:
		return field.Uint(key, val)
	case bool:
		return field.Bool(key, val)
	default:
		return field.Debug(key, val)
	}
}
