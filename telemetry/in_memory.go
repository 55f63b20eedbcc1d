package telemetry

import (
	"sync"
	"time"
)

// InMemoryBusOptions configures an InMemoryBus.
type InMemoryBusOptions struct {
	// MaxEvents caps retention; the oldest events are dropped beyond it.
	// Zero means unbounded.
	MaxEvents int
	// Redactor scrubs events on Publish. Defaults to the built-in redactor;
	// set to nil to store events verbatim.
	Redactor *Redactor
}

// InMemoryBus is a thread-safe, append-only, in-memory event store. It is the
// default bus for a single orchestration run and for tests.
type InMemoryBus struct {
	mu        sync.RWMutex
	events    []Event
	maxEvents int
	redactor  *Redactor
}

// NewInMemoryBus creates an empty in-memory bus.
func NewInMemoryBus(optFns ...func(o *InMemoryBusOptions)) *InMemoryBus {
	opts := InMemoryBusOptions{
		Redactor: NewRedactor(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryBus{
		maxEvents: opts.MaxEvents,
		redactor:  opts.Redactor,
	}
}

// Publish appends the event, scrubbing it first when a redactor is configured.
func (b *InMemoryBus) Publish(ev Event) {
	if b.redactor != nil {
		ev = b.redactor.Event(ev)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, ev)
	if b.maxEvents > 0 && len(b.events) > b.maxEvents {
		b.events = append([]Event(nil), b.events[len(b.events)-b.maxEvents:]...)
	}
}

// Query returns events with Timestamp >= since in publish order. A positive
// limit keeps only the most recent events of the window, still oldest first.
func (b *InMemoryBus) Query(since time.Time, limit int) ([]Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		if !ev.Timestamp.Before(since) {
			matched = append(matched, ev)
		}
	}

	return tail(matched, limit), nil
}

// Len returns the number of stored events.
func (b *InMemoryBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.events)
}
