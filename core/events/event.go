package events

import (
	"sort"
	"sync"
)

// Event represents a structured state change emitted by a module.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Record is the canonical flat event payload: a dotted type such as
// "redbank.deposit" plus string attributes.
type Record struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (r *Record) EventType() string {
	if r == nil {
		return ""
	}
	return r.Type
}

// Keys returns the attribute names in sorted order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.Attributes))
	for key := range r.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Buffer collects events in emission order until drained.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Forward re-emits every buffered event to dst and empties the buffer.
func (b *Buffer) Forward(dst Emitter) {
	if dst == nil {
		return
	}
	for _, evt := range b.Drain() {
		dst.Emit(evt)
	}
}
