package logfmt

import (
	"strings"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

type fieldSet map[string]struct{}

func newFieldSet(names ...string) fieldSet {
	s := make(fieldSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s fieldSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

// spanFields are the store fields shown on span creation above DEBUG
var spanFields = newFieldSet(
	"category",
	"follows_from",
	"follows_from.trace_id",
	"http.client_ip",
	"http.host",
	"http.method",
	"http.route",
	"latency_ms",
	"parent_span",
	"request_id",
	"span",
	"subject",
	"trace_id",
)

// closeFields are the store fields shown on span close at every level. Unlike
// spanFields it has no "span" entry.
var closeFields = newFieldSet(
	"category",
	"follows_from",
	"follows_from.trace_id",
	"http.client_ip",
	"http.host",
	"http.method",
	"http.route",
	"latency_ms",
	"parent_span",
	"request_id",
	"subject",
	"trace_id",
)

// eventSkipFields are the span store fields never repeated on events
var eventSkipFields = newFieldSet(
	"authorization",
	"category",
	"error",
	"msg",
	"return",
	"subject",
)

// displayName strips the log bridge prefix and shortens message to msg
func displayName(name string) string {
	name = strings.TrimPrefix(name, field.LogPrefix)
	if name == field.MessageKey {
		return "msg"
	}
	return name
}
