package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/util"
)

// Error represents errors raised by worker adapters with consistent codes:
//
//	VALIDATION_ERROR -> params did not match the declared schema
//	EXECUTION_ERROR  -> the wrapped function returned an error (non-Error)
//	(custom codes preserved if the function returns *Error directly)
type Error struct {
	Worker  string `json:"worker"`            // Name of the worker that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("worker error [%s] in %s: %s", e.Code, e.Worker, e.Message)
	}
	return fmt.Sprintf("worker error in %s: %s", e.Worker, e.Message)
}

// Error codes used by the adapters in this package.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// RunFunc is the plain function signature the adapters in this package wrap.
type RunFunc func(ctx context.Context, prompt string, params map[string]any) (*core.Result, error)

// Func is a generic adapter that exposes a plain Go function as a task worker.
//
// Responsibilities:
//   - Holds an optional lightweight JSON-Schema-like parameter specification
//   - Validates the spec's params against that schema before execution
//   - Normalizes error handling so callers receive *Error with consistent codes
//
// Concurrency:
//
//	A Func has no internal mutable state after construction and is safe for
//	concurrent use by multiple goroutines.
type Func struct {
	// Worker display name recorded on task records and events
	name string
	// JSON schema describing accepted params; nil disables validation
	parameters map[string]any
	// User supplied implementation
	fn RunFunc
}

// FuncOptions configures a Func adapter.
type FuncOptions struct {
	// Parameters is a minimal JSON-Schema-like map validated against the
	// spec's params before every execution. Nil disables validation.
	Parameters map[string]any
}

// NewFunc adapts fn into a core.Worker.
//
// Example:
//
//	w := worker.NewFunc("summarizer", func(ctx context.Context, prompt string, params map[string]any) (*core.Result, error) {
//	    return &core.Result{Output: summarize(prompt)}, nil
//	}, func(o *worker.FuncOptions) {
//	    o.Parameters = map[string]any{
//	        "type": "object",
//	        "properties": map[string]any{
//	            "document": map[string]any{"type": "string"},
//	        },
//	        "required": []string{"document"},
//	    }
//	})
func NewFunc(name string, fn RunFunc, optFns ...func(o *FuncOptions)) *Func {
	opts := FuncOptions{}

	for _, optFn := range optFns {
		optFn(&opts)
	}

	return &Func{
		name:       name,
		parameters: opts.Parameters,
		fn:         fn,
	}
}

// NewFuncFromStruct derives the parameter schema from a struct using
// reflection, producing a schema equivalent to util.CreateSchema(structType).
//
// Example:
//
//	type SummarizeParams struct {
//	    Document string `json:"document" description:"Text to summarize"`
//	    MaxWords *int   `json:"max_words,omitempty"`
//	}
//
//	w := worker.NewFuncFromStruct("summarizer", SummarizeParams{}, summarizeFn)
func NewFuncFromStruct(name string, structType any, fn RunFunc) *Func {
	return NewFunc(name, fn, func(o *FuncOptions) {
		o.Parameters = util.CreateSchema(structType)
	})
}

// Name returns the worker display name.
func (f *Func) Name() string { return f.name }

// Run validates params against the declared schema, if any, then invokes the
// wrapped function. Validation or execution failures are wrapped (or passed
// through) as *Error for uniform downstream handling.
func (f *Func) Run(ctx context.Context, prompt string, params map[string]any) (*core.Result, error) {
	if f.parameters != nil {
		if err := util.ValidateParameters(params, f.parameters); err != nil {
			return nil, &Error{
				Worker:  f.name,
				Message: fmt.Sprintf("parameter validation failed: %v", err),
				Code:    CodeValidation,
				Details: err,
			}
		}
	}

	result, err := f.fn(ctx, prompt, params)
	if err != nil {
		var workerErr *Error
		if errors.As(err, &workerErr) {
			return nil, workerErr
		}

		return nil, &Error{
			Worker:  f.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	return result, nil
}

// Factory adapts a plain construction function into a core.WorkerFactory.
type Factory struct {
	name string
	fn   func(rc *core.RunContext) (core.Worker, error)
}

// NewFactory wraps fn as a factory with the given display name. The name is
// used on records and events when construction itself fails.
//
// Example:
//
//	factory := worker.NewFactory("summarizer", func(rc *core.RunContext) (core.Worker, error) {
//	    return worker.NewFunc("summarizer", summarizeFn), nil
//	})
func NewFactory(name string, fn func(rc *core.RunContext) (core.Worker, error)) *Factory {
	return &Factory{name: name, fn: fn}
}

// Name returns the factory display name.
func (f *Factory) Name() string { return f.name }

// New builds a worker for one attempt.
func (f *Factory) New(rc *core.RunContext) (core.Worker, error) {
	return f.fn(rc)
}
