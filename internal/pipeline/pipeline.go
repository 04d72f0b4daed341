// Package pipeline runs the ordered chain of filter/handler pairs
// dispatched for every decoded Subscriber event.
package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// Action identifies the kind of event a handler was invoked for.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Options carries the event metadata alongside its payload rows.
type Options struct {
	Action Action
}

// Event is one decoded notification dispatched through the pipeline.
type Event struct {
	Options Options
	Payload []Row
}

// Row mirrors the raw JSON shape a handler decodes itself;
// defined here to avoid a dependency on the annotation package's decode
// internals beyond the Record/Tombstone types it already exports.
type Row = map[string]any

// Filter decides whether an event should reach its paired handler.
// Returning false skips the handler without treating it as an error.
type Filter func(ctx context.Context, ev Event) bool

// Handler processes an event that passed its Filter.
type Handler func(ctx context.Context, ev Event) error

type entry struct {
	name    string
	filter  Filter
	handler Handler
}

// Pipeline is an ordered list of (filter, handler) pairs, run in
// registration order for every event. Registration is expected at
// startup; dispatch may happen concurrently with reads of the list but
// never with registration, mirroring the registry this is modeled on.
type Pipeline struct {
	mu      sync.RWMutex
	entries []entry
	names   map[string]struct{}
}

// New constructs an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{names: make(map[string]struct{})}
}

// Register appends a named (filter, handler) pair. filter may be nil,
// meaning the handler always runs.
func (p *Pipeline) Register(name string, filter Filter, handler Handler) error {
	if name == "" {
		return fmt.Errorf("handler name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.names[name]; exists {
		return fmt.Errorf("handler %s already registered", name)
	}
	p.names[name] = struct{}{}
	p.entries = append(p.entries, entry{name: name, filter: filter, handler: handler})
	return nil
}

// MustRegister registers a handler or panics (for init-time wiring).
func (p *Pipeline) MustRegister(name string, filter Filter, handler Handler) {
	if err := p.Register(name, filter, handler); err != nil {
		panic(err)
	}
}

// Dispatch runs every registered handler whose filter accepts ev, in
// registration order. Handlers are serialized: the Subscriber's event
// loop must not be blocked by a single handler, so long-running handlers
// are expected to hand work off to their own workers rather than block
// here. The first handler error stops dispatch and is returned wrapped
// with the handler's name.
func (p *Pipeline) Dispatch(ctx context.Context, ev Event) error {
	p.mu.RLock()
	entries := make([]entry, len(p.entries))
	copy(entries, p.entries)
	p.mu.RUnlock()

	for _, e := range entries {
		if e.filter != nil && !e.filter(ctx, ev) {
			continue
		}
		if err := e.handler(ctx, ev); err != nil {
			return fmt.Errorf("handler %s: %w", e.name, err)
		}
	}
	return nil
}
