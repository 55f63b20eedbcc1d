package core

import (
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/backoff"
)

// Fairness selects the admission order used when a worker slot frees up.
type Fairness string

const (
	// FairnessRoundRobin admits the task that has waited longest in the queue.
	// Retried tasks re-enter the queue at the tail once their delay expires.
	FairnessRoundRobin Fairness = "round_robin"
	// FairnessShortestFirst orders the initial admission by ascending prompt
	// length (stable on input order); retries still re-enter at the tail.
	FairnessShortestFirst Fairness = "shortest_first"
)

// CancellationMode controls how one task's terminal failure affects its siblings.
type CancellationMode string

const (
	// CancellationIsolated confines failures, timeouts and cancellations to the
	// task they occurred in. Siblings are unaffected.
	CancellationIsolated CancellationMode = "isolated"
	// CancellationCascading cancels the whole run on the first terminal failure
	// or timeout. Remaining tasks finalize fast as failed.
	CancellationCascading CancellationMode = "cascading"
)

// OrchestrationPolicy bundles the knobs governing a single run.
type OrchestrationPolicy struct {
	// MaxConcurrency bounds the number of simultaneously running attempts.
	// The effective parallelism is min(MaxConcurrency, pending tasks).
	MaxConcurrency int `json:"max_concurrency"`
	// Retry governs per-task retry eligibility and backoff delays.
	Retry backoff.Policy `json:"retry"`
	// Timeout bounds each individual attempt. Zero means no timeout.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Fairness selects the admission order. Defaults to round robin.
	Fairness Fairness `json:"fairness,omitempty"`
	// Cancellation selects the failure propagation mode. Defaults to isolated.
	Cancellation CancellationMode `json:"cancellation,omitempty"`
}

// DefaultPolicy mirrors the canonical defaults: four slots, no retries,
// no timeout, round robin admission, isolated cancellation.
var DefaultPolicy = OrchestrationPolicy{
	MaxConcurrency: 4,
	Retry:          backoff.Default(),
	Fairness:       FairnessRoundRobin,
	Cancellation:   CancellationIsolated,
}

// withDefaults fills zero-valued enum fields so callers can construct policies
// with struct literals without naming every knob.
func (p OrchestrationPolicy) withDefaults() OrchestrationPolicy {
	if p.Fairness == "" {
		p.Fairness = FairnessRoundRobin
	}
	if p.Cancellation == "" {
		p.Cancellation = CancellationIsolated
	}
	if p.Retry.MaxAttempts == 0 && p.Retry.Strategy == "" {
		p.Retry = backoff.Default()
	}
	return p
}

// Normalize returns the policy with enum defaults applied, validating the
// result. It is what the scheduler applies before admitting any task.
func (p OrchestrationPolicy) Normalize() (OrchestrationPolicy, error) {
	p = p.withDefaults()
	if err := p.Validate(); err != nil {
		return OrchestrationPolicy{}, err
	}
	return p, nil
}

// Validate fails fast with a *ConfigError when any knob is out of range.
func (p OrchestrationPolicy) Validate() error {
	if p.MaxConcurrency < 1 {
		return &ConfigError{Field: "max_concurrency", Message: fmt.Sprintf("must be >= 1, got %d", p.MaxConcurrency)}
	}
	if p.Timeout < 0 {
		return &ConfigError{Field: "timeout", Message: "must not be negative"}
	}
	if err := p.Retry.Validate(); err != nil {
		return &ConfigError{Field: "retry", Message: err.Error()}
	}
	switch p.Fairness {
	case FairnessRoundRobin, FairnessShortestFirst:
	default:
		return &ConfigError{Field: "fairness", Message: fmt.Sprintf("unknown mode %q", p.Fairness)}
	}
	switch p.Cancellation {
	case CancellationIsolated, CancellationCascading:
	default:
		return &ConfigError{Field: "cancellation", Message: fmt.Sprintf("unknown mode %q", p.Cancellation)}
	}
	return nil
}
