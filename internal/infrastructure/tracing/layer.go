package tracing

import (
	"strings"

	"github.com/GriffinCanCode/spantrail/internal/infrastructure/tracing/field"
)

// Layer observes span lifecycle notifications. Layers are called
// synchronously, in registration order, on the goroutine that raised the
// notification.
type Layer interface {
	OnNewSpan(attrs *Attributes, id ID, reg *Registry)
	OnRecord(id ID, fields []field.Field, reg *Registry)
	OnFollowsFrom(id, follows ID, reg *Registry)
	OnEvent(ev *Event, reg *Registry)
	OnEnter(id ID, reg *Registry)
	OnExit(id ID, reg *Registry)
	OnClose(id ID, reg *Registry)
}

// NopLayer ignores every notification. Embed it to implement only the
// callbacks a layer needs.
type NopLayer struct{}

func (NopLayer) OnNewSpan(*Attributes, ID, *Registry) {}
func (NopLayer) OnRecord(ID, []field.Field, *Registry) {}
func (NopLayer) OnFollowsFrom(ID, ID, *Registry) {}
func (NopLayer) OnEvent(*Event, *Registry) {}
func (NopLayer) OnEnter(ID, *Registry) {}
func (NopLayer) OnExit(ID, *Registry) {}
func (NopLayer) OnClose(ID, *Registry) {}

// Filter decides whether a layer sees a span or event
type Filter func(meta *Metadata) bool

// LevelFilter enables metadata at or above min
func LevelFilter(min Level) Filter {
	return func(meta *Metadata) bool {
		return meta.Level.Enabled(min)
	}
}

// SpanPrefixFilter enables every event and the spans whose name starts
// with prefix
func SpanPrefixFilter(prefix string) Filter {
	return func(meta *Metadata) bool {
		return meta.IsEvent() || strings.HasPrefix(meta.Name, prefix)
	}
}

func allOf(filters []Filter) Filter {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		return filters[0]
	}
	return func(meta *Metadata) bool {
		for _, f := range filters {
			if !f(meta) {
				return false
			}
		}
		return true
	}
}
