// Package scheduler implements the core orchestration layer for TaskMesh.
//
// The Scheduler is the central coordination hub that drives a batch of
// independent tasks from submission to terminal state. It bridges the gap
// between a caller's task specs and the workers that execute them, providing
// bounded concurrency, automatic retries and continuous telemetry.
//
// # Core Responsibilities
//
// Admission:
//   - FIFO ready queue feeding a pool of at most policy.MaxConcurrency
//     worker goroutines
//   - Round-robin fairness: the longest-queued eligible task takes the next
//     free slot; retried tasks re-enter at the tail once their delay elapses
//   - Optional shortest-first admission ordered by prompt length
//
// Lifecycle Management:
//   - Per-task state machine: Queued -> Running -> {Success | Retrying ->
//     Queued | Failed | TimedOut}
//   - Fresh worker per attempt via the task's factory: no state bleeds
//     between attempts or between tasks
//   - Per-attempt timeout enforcement with abandoned-execution semantics:
//     the pool never waits on a stuck worker
//
// Telemetry:
//   - Exactly one task_started and one task_finished event per attempt
//   - Periodic heartbeats for every running attempt
//   - Run markers carrying configured capacity for utilization reporting
//
// Isolation:
//   - One task's failure, timeout or cancellation never affects siblings
//   - Cascading mode inverts this deliberately: the first terminal failure
//     cancels the whole run
//
// # Usage
//
// Basic setup:
//
//	bus := telemetry.NewInMemoryBus()
//	sched := scheduler.New(bus, func(o *scheduler.Options) {
//	    o.Logger = logger
//	})
//
//	specs := []core.TaskSpec{
//	    {ID: "summarize", Factory: factory, Prompt: "Summarize the report"},
//	    {ID: "translate", Factory: factory, Prompt: "Translate to German"},
//	}
//
//	policy := core.OrchestrationPolicy{
//	    MaxConcurrency: 4,
//	    Retry:          backoff.Policy{MaxAttempts: 3, Strategy: backoff.StrategyExponential, BaseDelay: 100 * time.Millisecond},
//	    Timeout:        30 * time.Second,
//	}
//
//	result, err := sched.Run(ctx, nil, specs, policy)
//	if err != nil {
//	    return err
//	}
//	for _, rec := range result.Tasks {
//	    fmt.Println(rec.ID, rec.Status, rec.Attempts)
//	}
//
// # Error Handling
//
// Invalid configuration (bad policy values, duplicate task IDs, missing
// factories) fails the whole run with a *core.ConfigError before any task
// starts and before any event is published. Everything after that point is
// per-task: attempt errors are collected into each task's record and never
// abort the run. Caller cancellation drains the batch fast while still
// producing a terminal record for every single task.
package scheduler
