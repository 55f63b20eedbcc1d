package telemetry

import "time"

// Bus is the fan-in point for everything observable about task execution.
// The scheduler publishes; the aggregator (or any later inspection) queries.
//
// Implementations must be safe for concurrent publishers and readers, and
// Publish must never fail the caller: telemetry trouble is logged and
// swallowed so it cannot break task execution.
type Bus interface {
	// Publish appends the event to the store.
	Publish(ev Event)
	// Query returns events with Timestamp >= since in publish order. When
	// limit is positive, only the most recent limit events of the window are
	// returned, still oldest first.
	Query(since time.Time, limit int) ([]Event, error)
}

// tail keeps the most recent limit events of an ascending slice, preserving
// order. A non-positive limit keeps everything.
func tail(events []Event, limit int) []Event {
	if limit > 0 && len(events) > limit {
		return events[len(events)-limit:]
	}
	return events
}
