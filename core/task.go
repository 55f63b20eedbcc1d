package core

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the terminal outcome of a task (and of each individual attempt).
type TaskStatus string

const (
	// TaskStatusSuccess indicates the worker returned a result.
	TaskStatusSuccess TaskStatus = "success"
	// TaskStatusFailed indicates the final attempt returned an error.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusTimeout indicates the final attempt exceeded the per-attempt timeout.
	TaskStatusTimeout TaskStatus = "timeout"
)

// TaskSpec describes one unit of work submitted to the scheduler.
//
// ID is optional; when empty the scheduler assigns "task-<index>" based on the
// spec's position in the batch. IDs must be unique within a batch. Factory is
// required and is invoked once per attempt, so workers are never shared across
// attempts or tasks.
type TaskSpec struct {
	// ID uniquely identifies the task within its batch. Optional.
	ID string `json:"id,omitempty"`
	// Factory constructs a fresh worker for every attempt.
	Factory WorkerFactory `json:"-"`
	// Prompt is the primary textual payload handed to the worker.
	Prompt string `json:"prompt,omitempty"`
	// Params carries additional structured input, opaque to the scheduler.
	Params map[string]any `json:"params,omitempty"`
}

// TaskRecord is the per-task summary produced by a run. Exactly one record
// exists per input spec, in input order.
type TaskRecord struct {
	// ID is the task identifier (assigned if the spec omitted one).
	ID string `json:"id"`
	// Agent is the display name of the worker that ran the task.
	Agent string `json:"agent"`
	// Status is the terminal outcome derived from the final attempt.
	Status TaskStatus `json:"status"`
	// Attempts counts every attempt performed, including the final one.
	Attempts int `json:"attempts"`
	// StartedAt is the wall-clock start of the first attempt (UTC).
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is the wall-clock end of the final attempt (UTC).
	FinishedAt time.Time `json:"finished_at"`
	// Errors holds one message per failed or timed-out attempt, in attempt order.
	Errors []string `json:"errors,omitempty"`
	// Result is the successful worker payload; nil unless Status is success.
	Result *Result `json:"result,omitempty"`
}

// Duration returns the span from the first attempt's start to the final
// attempt's end, including retry delays.
func (r TaskRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunMetrics summarizes a completed run.
type RunMetrics struct {
	// WallTime is the total elapsed time of the run.
	WallTime time.Duration `json:"wall_time"`
	// Tasks is the number of input specs.
	Tasks int `json:"tasks"`
	// Succeeded / Failed / TimedOut partition Tasks by terminal status.
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
	// Attempts is the total number of attempts performed across all tasks.
	Attempts int `json:"attempts"`
}

// OrchestrationResult aggregates the outcome of a run. Tasks preserves the
// input order of the submitted specs regardless of completion order.
type OrchestrationResult struct {
	Tasks   []TaskRecord `json:"tasks"`
	Metrics RunMetrics   `json:"metrics"`
}

// NewID generates a unique identifier for runs and events.
func NewID() string {
	return uuid.NewString()
}
