/*
Package logfmt renders spans and events as logfmt lines.

Three kinds of line are produced:

	level=info span_name=request span=1 span_event=new_span timestamp=... request_id=01J...
	level=warn msg="upstream slow" elapsed=812 target="app/api" location="api/user.go:88" timestamp=... span=1 request_id=01J...
	level=info span_name=request span=1 span_event=close_span timestamp=... latency_ms=815 request_id=01J...

Span creation lines of TRACE and DEBUG spans carry every stored field; above
DEBUG only a fixed set of correlation fields is shown. Span close lines always
use their own fixed set, whatever the level. Events carry their own
fields, the source location when enabled, and the enclosing span's stored
fields minus the ones that only make sense on the span itself.

Values go through Quote, which leaves simple values bare and wraps anything
containing whitespace, '=', control characters or unbalanced quotes.
*/
package logfmt
