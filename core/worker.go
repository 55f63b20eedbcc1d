package core

import (
	"context"

	"github.com/hupe1980/taskmesh/logging"
)

// TokenUsage captures token usage statistics reported by a worker.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the payload a worker returns on success. Output is opaque to the
// engine; Model and Usage, when present, feed telemetry cost accounting.
type Result struct {
	// Output is the worker's payload. The engine never inspects it.
	Output any `json:"output,omitempty"`
	// Model identifies the backing model for cost accounting. Optional.
	Model string `json:"model,omitempty"`
	// Usage reports token consumption for cost accounting. Optional.
	Usage *TokenUsage `json:"usage,omitempty"`
}

// Worker executes a single attempt of a task.
//
// Run must honor ctx cancellation: when the scheduler abandons a timed-out
// attempt it cancels ctx and moves on without waiting, so a worker that
// ignores ctx keeps a goroutine alive until it returns on its own.
type Worker interface {
	// Name returns the display name recorded on task records and events.
	Name() string
	// Run executes the task payload and returns a result or an error.
	Run(ctx context.Context, prompt string, params map[string]any) (*Result, error)
}

// WorkerFactory constructs workers. The scheduler calls New once per attempt
// with the shared run context, so every attempt executes on a fresh instance.
type WorkerFactory interface {
	// Name returns the display name used when construction itself fails.
	Name() string
	// New builds a worker for one attempt.
	New(rc *RunContext) (Worker, error)
}

// RunContext carries caller-owned wiring shared by every worker a run
// constructs. The scheduler threads it through to factories untouched; only
// RunID and the logger are stamped by the engine. Values is entirely
// caller-owned and never inspected.
type RunContext struct {
	// RunID identifies the orchestration run. Set by the scheduler.
	RunID string
	// Values holds caller-provided wiring (clients, credentials, stores).
	Values map[string]any

	*loggerAdapter
}

// NewRunContext constructs a RunContext with a guaranteed non-nil logger.
func NewRunContext(logger logging.Logger) *RunContext {
	return &RunContext{
		Values:        map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Value returns a caller-provided entry and whether it was present.
func (rc *RunContext) Value(key string) (any, bool) {
	v, ok := rc.Values[key]
	return v, ok
}

// SetValue stores a caller-provided entry.
func (rc *RunContext) SetValue(key string, v any) {
	if rc.Values == nil {
		rc.Values = map[string]any{}
	}
	rc.Values[key] = v
}
