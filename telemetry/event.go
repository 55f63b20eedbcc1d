package telemetry

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// EventType discriminates telemetry events on the bus.
type EventType string

const (
	// EventTaskStarted is published immediately before an attempt executes.
	EventTaskStarted EventType = "task_started"
	// EventTaskFinished is published after every attempt, including attempts
	// that will be retried, carrying the attempt outcome.
	EventTaskFinished EventType = "task_finished"
	// EventHeartbeat is published at a fixed interval while an attempt runs.
	EventHeartbeat EventType = "heartbeat"
	// EventRunStarted marks the beginning of an orchestration run and carries
	// its configured capacity.
	EventRunStarted EventType = "run_started"
	// EventRunFinished marks the end of an orchestration run.
	EventRunFinished EventType = "run_finished"
)

// Event is the immutable telemetry record published by the scheduler.
// Type-specific fields are optional and omitted from JSON when unset.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`
	// Type discriminates the payload fields below.
	Type EventType `json:"type"`
	// Timestamp is the publish time in UTC.
	Timestamp time.Time `json:"ts"`

	// TaskID, Agent and Attempt identify the attempt for task-scoped events.
	TaskID  string `json:"task_id,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Attempt int    `json:"attempt,omitempty"`

	// Status is the attempt outcome on task_finished events.
	Status core.TaskStatus `json:"status,omitempty"`
	// DurationS is the attempt duration in seconds on task_finished events,
	// and the run duration on run_finished events.
	DurationS float64 `json:"duration_s,omitempty"`
	// Error is the attempt error message, if any, on task_finished events.
	Error string `json:"error,omitempty"`
	// Usage and Model carry worker-reported accounting on task_finished events.
	Usage *core.TokenUsage `json:"usage,omitempty"`
	Model string           `json:"model,omitempty"`

	// RunningForS is the elapsed seconds since the attempt started, on
	// heartbeat events.
	RunningForS float64 `json:"running_for_s,omitempty"`

	// RunID, MaxConcurrency and Tasks describe the run on marker events.
	RunID          string `json:"run_id,omitempty"`
	MaxConcurrency int    `json:"max_concurrency,omitempty"`
	Tasks          int    `json:"tasks,omitempty"`
}

// NewEvent creates an event of the given type with a fresh ID and UTC timestamp.
func NewEvent(t EventType) Event {
	return Event{
		ID:        core.NewID(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// NewTaskStarted creates the event published right before an attempt executes.
func NewTaskStarted(taskID, agent string, attempt int) Event {
	ev := NewEvent(EventTaskStarted)
	ev.TaskID = taskID
	ev.Agent = agent
	ev.Attempt = attempt
	return ev
}

// NewTaskFinished creates the event published after an attempt ends. The
// result's usage and model ride along when the worker reported them.
func NewTaskFinished(taskID, agent string, attempt int, status core.TaskStatus, duration time.Duration, errMsg string, result *core.Result) Event {
	ev := NewEvent(EventTaskFinished)
	ev.TaskID = taskID
	ev.Agent = agent
	ev.Attempt = attempt
	ev.Status = status
	ev.DurationS = duration.Seconds()
	ev.Error = errMsg
	if result != nil {
		ev.Usage = result.Usage
		ev.Model = result.Model
	}
	return ev
}

// NewHeartbeat creates the periodic liveness event for a running attempt.
func NewHeartbeat(taskID, agent string, attempt int, runningFor time.Duration) Event {
	ev := NewEvent(EventHeartbeat)
	ev.TaskID = taskID
	ev.Agent = agent
	ev.Attempt = attempt
	ev.RunningForS = runningFor.Seconds()
	return ev
}

// NewRunStarted creates the run marker that carries the configured capacity.
// The aggregator derives resource utilization from the latest one in a window.
func NewRunStarted(runID string, maxConcurrency, tasks int) Event {
	ev := NewEvent(EventRunStarted)
	ev.RunID = runID
	ev.MaxConcurrency = maxConcurrency
	ev.Tasks = tasks
	return ev
}

// NewRunFinished creates the run completion marker.
func NewRunFinished(runID string, tasks int, wallTime time.Duration) Event {
	ev := NewEvent(EventRunFinished)
	ev.RunID = runID
	ev.Tasks = tasks
	ev.DurationS = wallTime.Seconds()
	return ev
}
