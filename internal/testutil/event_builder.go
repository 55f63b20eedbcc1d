package testutil

import (
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/telemetry"
)

// EventBuilder provides a fluent helper for constructing telemetry events in
// tests. Example:
//
//	ev := NewEventBuilder().TaskFinished("task-1", core.TaskStatusSuccess).At(past).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	typ      telemetry.EventType
	id       string
	at       *time.Time
	taskID   string
	agent    string
	attempt  int
	status   core.TaskStatus
	duration time.Duration
	errMsg   string
	usage    *core.TokenUsage
	model    string
	running  time.Duration
	runID    string
	maxConc  int
	tasks    int
}

// NewEventBuilder creates a builder with default agent "agent" and attempt 1,
// producing a task_started event unless a type shortcut overrides it.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{typ: telemetry.EventTaskStarted, agent: "agent", attempt: 1}
}

// TaskStarted switches the builder to a task_started event for the given task (chainable).
func (b *EventBuilder) TaskStarted(taskID string) *EventBuilder {
	b.typ = telemetry.EventTaskStarted
	b.taskID = taskID
	return b
}

// TaskFinished switches the builder to a task_finished event with the given outcome (chainable).
func (b *EventBuilder) TaskFinished(taskID string, status core.TaskStatus) *EventBuilder {
	b.typ = telemetry.EventTaskFinished
	b.taskID = taskID
	b.status = status
	return b
}

// Heartbeat switches the builder to a heartbeat event for the given task (chainable).
func (b *EventBuilder) Heartbeat(taskID string) *EventBuilder {
	b.typ = telemetry.EventHeartbeat
	b.taskID = taskID
	return b
}

// RunStarted switches the builder to a run_started marker (chainable).
func (b *EventBuilder) RunStarted(runID string, maxConcurrency, tasks int) *EventBuilder {
	b.typ = telemetry.EventRunStarted
	b.runID = runID
	b.maxConc = maxConcurrency
	b.tasks = tasks
	return b
}

// RunFinished switches the builder to a run_finished marker (chainable).
func (b *EventBuilder) RunFinished(runID string, tasks int) *EventBuilder {
	b.typ = telemetry.EventRunFinished
	b.runID = runID
	b.tasks = tasks
	return b
}

// ID overrides the auto-generated event ID (chainable). Use mainly in tests where determinism matters.
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// At overrides the event timestamp, e.g. to place events in the past (chainable).
func (b *EventBuilder) At(t time.Time) *EventBuilder { b.at = &t; return b }

// Agent sets the worker display name on the event (chainable).
func (b *EventBuilder) Agent(name string) *EventBuilder { b.agent = name; return b }

// Attempt sets the attempt number on the event (chainable).
func (b *EventBuilder) Attempt(n int) *EventBuilder { b.attempt = n; return b }

// Duration sets the attempt or run duration (chainable).
func (b *EventBuilder) Duration(d time.Duration) *EventBuilder { b.duration = d; return b }

// Error sets the attempt error message (chainable).
func (b *EventBuilder) Error(msg string) *EventBuilder { b.errMsg = msg; return b }

// Usage attaches worker-reported token usage (chainable).
func (b *EventBuilder) Usage(prompt, completion int) *EventBuilder {
	b.usage = &core.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
	return b
}

// Model sets the model identifier used for cost accounting (chainable).
func (b *EventBuilder) Model(m string) *EventBuilder { b.model = m; return b }

// RunningFor sets the heartbeat's elapsed-time field (chainable).
func (b *EventBuilder) RunningFor(d time.Duration) *EventBuilder { b.running = d; return b }

// Build constructs the telemetry.Event value.
func (b *EventBuilder) Build() telemetry.Event {
	var ev telemetry.Event

	switch b.typ {
	case telemetry.EventTaskFinished:
		var result *core.Result
		if b.usage != nil || b.model != "" {
			result = &core.Result{Model: b.model, Usage: b.usage}
		}

		status := b.status
		if status == "" {
			status = core.TaskStatusSuccess
		}

		ev = telemetry.NewTaskFinished(b.taskID, b.agent, b.attempt, status, b.duration, b.errMsg, result)
	case telemetry.EventHeartbeat:
		ev = telemetry.NewHeartbeat(b.taskID, b.agent, b.attempt, b.running)
	case telemetry.EventRunStarted:
		ev = telemetry.NewRunStarted(b.runID, b.maxConc, b.tasks)
	case telemetry.EventRunFinished:
		ev = telemetry.NewRunFinished(b.runID, b.tasks, b.duration)
	default:
		ev = telemetry.NewTaskStarted(b.taskID, b.agent, b.attempt)
	}

	if b.id != "" {
		ev.ID = b.id
	}

	if b.at != nil {
		ev.Timestamp = b.at.UTC()
	}

	return ev
}
