/*
Package storage keeps a key/value store on every span.

The store travels with the span from creation to close:

  - creation: a copy of the parent's store plus parent_span=<parent id>,
    then the span's own fields
  - record: fields are encoded and inserted, later values win
  - follows-from: follows_from and follows_from.trace_id describe the
    causal predecessor
  - event: an event carrying an error field copies that field onto the span
  - close: latency_ms is written before any later layer reads the store

Register this layer first so the formatter and metrics layers see a complete
store:

	d := tracing.NewDispatcher().
		With(storage.New()).
		With(logfmt.New(), tracing.LevelFilter(tracing.LevelInfo)).
		With(monitoring.NewSpanLayer(recorder), tracing.SpanPrefixFilter("record."))
*/
package storage
