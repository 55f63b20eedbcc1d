// Package telemetry provides the event bus the scheduler publishes to and the
// aggregation layer that turns the raw stream into operational reports.
//
// Publish never blocks task execution and never fails: buses swallow their own
// I/O problems (logging them) so a broken telemetry sink cannot take an
// orchestration run down with it. Events are redacted before they are stored,
// stripping API keys and other secrets from error messages.
//
// Two bus implementations ship with the package. InMemoryBus keeps a bounded
// ring of events for tests and embedded use; JSONLBus appends one JSON object
// per line to a file so external tooling can follow a run. Additional backends
// (sockets, brokers, databases) only need to implement the two-method Bus
// interface.
//
// The Aggregator reads a bus back and condenses a trailing time window into a
// Report: event counts, active agents, running attempts with heartbeat ages,
// outcome tallies, duration percentiles, capacity utilization and token costs.
// It keeps no state of its own, so it can run concurrently with publishers.
package telemetry
