package tracing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var ErrSpanNotFound = errors.New("span not found in registry")

// Registry is the table of live spans. Entries are added on creation and
// removed after every layer has seen the close.
type Registry struct {
	mu    sync.RWMutex
	spans map[ID]*SpanRef
	next  atomic.Uint64
}

// NewRegistry creates an empty span table
func NewRegistry() *Registry {
	return &Registry{spans: make(map[ID]*SpanRef)}
}

// Span looks up a live span
func (r *Registry) Span(id ID) (*SpanRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.spans[id]
	return ref, ok
}

// MustSpan looks up a span the caller knows is live. A miss means the
// runtime broke its contract and panics with ErrSpanNotFound.
func (r *Registry) MustSpan(id ID) *SpanRef {
	ref, ok := r.Span(id)
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrSpanNotFound, id.Debug()))
	}
	return ref
}

// Len returns the number of live spans
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.spans)
}

func (r *Registry) insert(meta *Metadata, parent ID, mask uint64) *SpanRef {
	ref := &SpanRef{
		id:     ID(r.next.Add(1)),
		meta:   meta,
		parent: parent,
		mask:   mask,
	}

	r.mu.Lock()
	r.spans[ref.id] = ref
	r.mu.Unlock()

	return ref
}

func (r *Registry) remove(id ID) {
	r.mu.Lock()
	delete(r.spans, id)
	r.mu.Unlock()
}
