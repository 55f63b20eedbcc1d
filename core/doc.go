// Package core provides the foundational domain types and interfaces used by
// TaskMesh. It defines the core abstractions for:
//
//   - Task specs and records (the unit of orchestrated work and its outcome)
//   - Orchestration policies (concurrency, retries, timeouts, fairness)
//   - The worker boundary (Worker, WorkerFactory, Result, TokenUsage)
//   - RunContext (the opaque handle threaded through to worker factories)
//
// The package intentionally keeps implementation concerns (scheduling,
// telemetry storage, concrete workers) out of scope, exposing small interfaces
// to enable custom backends and extensions. All exported identifiers include
// concise documentation to aid discoverability and external consumption.
package core
