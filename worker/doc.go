// Package worker contains adapters that turn plain Go functions, mocks and
// LLM provider clients into the core.Worker / core.WorkerFactory pair the
// scheduler consumes. The package focuses on three concerns:
//
//  1. Function adapters (Func, Factory) with optional schema-validated params
//  2. A simulated worker (Mock) with a latency band, failure rate and
//     synthetic usage for tests and examples
//  3. Provider subpackages (anthropic, openai) that run prompts against real
//     model APIs and report genuine usage for cost accounting
//
// Error handling is normalized: adapter failures surface as *Error carrying a
// stable code (VALIDATION_ERROR, EXECUTION_ERROR, or a custom code passed
// through unchanged), so retry and telemetry layers can categorize them
// without string matching.
//
// Workers must honor ctx cancellation: the scheduler abandons timed-out
// attempts without waiting, so a worker that ignores ctx keeps its goroutine
// alive until it returns on its own.
package worker
