// Package taskmesh provides a high-level façade over the task scheduler and
// telemetry services enabling rapid construction of parallel agent workloads.
// Most applications interact with this package by:
//  1. Creating a TaskMesh via New() (optionally overriding the default in-memory bus)
//  2. Submitting a batch of task specs under an orchestration policy (Run)
//  3. Inspecting per-task records and windowed telemetry (Aggregate, ListEvents)
//
// The façade delegates execution to scheduler.Scheduler while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments typically supply a persistent bus (for
// example telemetry.NewJSONLBus), custom cost rates and a structured logger.
package taskmesh

import (
	"context"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/pricing"
	"github.com/hupe1980/taskmesh/scheduler"
	"github.com/hupe1980/taskmesh/telemetry"
)

// Options configures the TaskMesh instance.
type Options struct {
	// SchedulerConfig tunes operational scheduler behavior (heartbeat cadence).
	SchedulerConfig scheduler.Config

	// Bus receives every telemetry event and serves queries. Defaults to an
	// in-memory bus if not provided.
	Bus telemetry.Bus

	// Rates maps model names to USD per token for cost accounting in
	// aggregated reports. Defaults to pricing.DefaultTable().
	Rates pricing.Table

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// TaskMesh is the high-level façade aggregating the scheduler and telemetry services.
type TaskMesh struct {
	opts       Options
	scheduler  *scheduler.Scheduler
	aggregator *telemetry.Aggregator
}

// New creates a new TaskMesh instance with optional overrides. Any unset
// service is initialized with an in-memory implementation.
//
// Example:
//
//	mesh := taskmesh.New(func(o *taskmesh.Options) {
//	    o.Logger = logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	})
//
//	result, err := mesh.Run(ctx, nil, specs, core.DefaultPolicy)
func New(optFns ...func(o *Options)) *TaskMesh {
	opts := Options{
		SchedulerConfig: scheduler.DefaultConfig,
		Bus:             telemetry.NewInMemoryBus(),
		Rates:           pricing.DefaultTable(),
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Bus == nil {
		opts.Bus = telemetry.NewInMemoryBus()
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	sched := scheduler.New(opts.Bus, func(o *scheduler.Options) {
		o.Config = opts.SchedulerConfig
		o.Logger = opts.Logger
	})

	agg := telemetry.NewAggregator(opts.Bus, func(o *telemetry.AggregatorOptions) {
		o.Rates = opts.Rates
		o.Logger = opts.Logger
	})

	return &TaskMesh{opts: opts, scheduler: sched, aggregator: agg}
}

// Run executes the batch of specs under the given policy and returns one
// record per task, in input order. See scheduler.Scheduler.Run for the full
// contract; rc may be nil.
func (m *TaskMesh) Run(ctx context.Context, rc *core.RunContext, specs []core.TaskSpec, policy core.OrchestrationPolicy) (*core.OrchestrationResult, error) {
	return m.scheduler.Run(ctx, rc, specs, policy)
}

// Bus returns the telemetry bus shared by the scheduler and aggregator,
// letting callers publish their own events or attach external consumers.
func (m *TaskMesh) Bus() telemetry.Bus {
	return m.opts.Bus
}

// Aggregate summarizes bus activity over the trailing window into a report
// with counts, running tasks, duration percentiles, utilization and costs.
// A non-positive window uses telemetry.DefaultWindow.
func (m *TaskMesh) Aggregate(window time.Duration) (*telemetry.Report, error) {
	return m.aggregator.Aggregate(window)
}

// ListEvents returns raw events from the trailing window, oldest first,
// keeping the most recent limit entries (0 keeps all).
func (m *TaskMesh) ListEvents(window time.Duration, limit int) ([]telemetry.Event, error) {
	return m.aggregator.ListEvents(window, limit)
}
