package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/telemetry"
)

// Config defines tuning parameters for the Scheduler's operational behavior.
//
// This configuration focuses on the telemetry cadence of running attempts.
// Policy-level knobs (concurrency, retries, timeouts, fairness, cancellation)
// travel with each run as a core.OrchestrationPolicy instead, so one scheduler
// instance can serve differently-shaped batches.
type Config struct {
	// HeartbeatInterval is the period between liveness events emitted for
	// every running attempt. Lower values give fresher dashboards at the cost
	// of event volume. Set to 0 to use the default.
	HeartbeatInterval time.Duration
}

// DefaultConfig provides production-ready default configuration values.
//
// Configuration values:
//   - HeartbeatInterval: 5s (frequent enough to spot stuck attempts without
//     flooding the bus)
var DefaultConfig = Config{
	HeartbeatInterval: 5 * time.Second,
}

// Options configures a Scheduler instance using the functional options pattern.
//
// Example:
//
//	sched := New(bus, func(o *Options) {
//	    o.Config.HeartbeatInterval = time.Second
//	    o.Logger = myLogger
//	})
type Options struct {
	// Config contains operational parameters for the scheduler behavior.
	// Defaults to DefaultConfig if not specified.
	Config Config

	// Logger provides structured logging for debugging and monitoring.
	// Defaults to NoOp logger if nil to ensure no logging dependencies.
	Logger logging.Logger
}

// Scheduler runs batches of independent tasks under bounded concurrency with
// automatic retries, per-attempt timeouts and continuous telemetry.
//
// Core Responsibilities:
//   - Admission: a FIFO ready queue feeds a pool of at most
//     policy.MaxConcurrency worker goroutines; retry-delay timers hold no slot
//   - Lifecycle: Queued -> Running -> {Success | Retrying -> Queued | Failed | TimedOut}
//   - Telemetry: exactly one task_started and one task_finished per attempt,
//     periodic heartbeats while attempts run, run markers around the batch
//   - Isolation: one task's failure, timeout or cancellation never affects
//     sibling tasks unless the policy opts into cascading cancellation
//
// Concurrency Model:
//   - Per-run queue, pool and bookkeeping; a Scheduler holds no mutable state
//     between runs and is safe for concurrent Run calls
//   - Each task's state is owned by exactly one goroutine at a time, so task
//     bookkeeping needs no locks
//   - Timed-out attempts are abandoned, never joined: forward progress does
//     not gate on a stuck worker actually stopping
type Scheduler struct {
	bus    telemetry.Bus  // Destination for lifecycle events - never nil
	config Config         // Operational parameters (heartbeat cadence)
	logger logging.Logger // Structured logging interface
}

// New creates a Scheduler publishing to the given bus.
//
// A nil bus falls back to a fresh in-memory bus, which suits tests and
// embedded use; production callers typically inject a shared bus so the
// aggregator and external consumers see the same stream.
//
// Example:
//
//	bus := telemetry.NewInMemoryBus()
//	sched := New(bus)
//	result, err := sched.Run(ctx, nil, specs, core.DefaultPolicy)
func New(bus telemetry.Bus, optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config.HeartbeatInterval <= 0 {
		opts.Config.HeartbeatInterval = DefaultConfig.HeartbeatInterval
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if bus == nil {
		bus = telemetry.NewInMemoryBus()
	}

	return &Scheduler{
		bus:    bus,
		config: opts.Config,
		logger: opts.Logger,
	}
}

// Bus returns the telemetry bus this scheduler publishes to.
func (s *Scheduler) Bus() telemetry.Bus {
	return s.bus
}

// taskState tracks one task through its lifecycle. Ownership is sequential:
// exactly one goroutine (a pool worker or that task's retry timer) holds the
// state at any moment, which is why its fields need no lock.
type taskState struct {
	index int
	id    string
	spec  core.TaskSpec

	attempt  int
	agent    string
	status   core.TaskStatus
	errors   []string
	result   *core.Result
	started  time.Time
	finished time.Time
}

// Run executes every task in specs to a terminal state and returns one record
// per task, in input order.
//
// Validation failures (*core.ConfigError) abort before any task starts and
// before any event is published. Past that point, per-task failures never
// surface as a Run error: callers inspect the per-task records for outcomes.
// When ctx is canceled mid-run, tasks that never started are fast-failed,
// tasks waiting out a retry delay keep their last outcome, and Run returns
// the complete result alongside ctx.Err().
//
// rc may be nil; a fresh RunContext is created in that case. The scheduler
// stamps rc.RunID when the caller left it empty.
func (s *Scheduler) Run(ctx context.Context, rc *core.RunContext, specs []core.TaskSpec, policy core.OrchestrationPolicy) (*core.OrchestrationResult, error) {
	normalized, err := policy.Normalize()
	if err != nil {
		return nil, err
	}
	policy = normalized

	specs, err = normalizeSpecs(specs)
	if err != nil {
		return nil, err
	}

	if rc == nil {
		rc = core.NewRunContext(s.logger)
	}
	if rc.RunID == "" {
		rc.RunID = core.NewID()
	}
	runID := rc.RunID

	start := time.Now()

	s.bus.Publish(telemetry.NewRunStarted(runID, policy.MaxConcurrency, len(specs)))
	s.logger.Info("scheduler.run.started", "run_id", runID, "tasks", len(specs), "max_concurrency", policy.MaxConcurrency)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	tasks := make([]*taskState, len(specs))
	for i, spec := range specs {
		tasks[i] = &taskState{index: i, id: spec.ID, spec: spec}
	}

	// A task occupies at most one queue slot at a time, so with capacity
	// len(tasks) neither initial admission nor retry re-enqueues can block.
	queue := make(chan *taskState, len(tasks))
	for _, ts := range admissionOrder(tasks, policy.Fairness) {
		queue <- ts
	}

	var pending sync.WaitGroup
	pending.Add(len(tasks))

	// Close the queue once every task is terminal so the pool drains.
	go func() {
		pending.Wait()
		close(queue)
	}()

	workers := policy.MaxConcurrency
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var pool sync.WaitGroup
	for i := 0; i < workers; i++ {
		pool.Add(1)
		go func() {
			defer pool.Done()
			for ts := range queue {
				s.runAttempt(runCtx, rc, ts, policy, &pending, queue, cancelRun)
			}
		}()
	}

	pool.Wait()

	wallTime := time.Since(start)

	records := make([]core.TaskRecord, len(tasks))
	metrics := core.RunMetrics{WallTime: wallTime, Tasks: len(tasks)}

	for i, ts := range tasks {
		records[i] = core.TaskRecord{
			ID:         ts.id,
			Agent:      ts.agent,
			Status:     ts.status,
			Attempts:   ts.attempt,
			StartedAt:  ts.started,
			FinishedAt: ts.finished,
			Errors:     ts.errors,
			Result:     ts.result,
		}

		metrics.Attempts += ts.attempt

		switch ts.status {
		case core.TaskStatusSuccess:
			metrics.Succeeded++
		case core.TaskStatusTimeout:
			metrics.TimedOut++
		default:
			metrics.Failed++
		}
	}

	s.bus.Publish(telemetry.NewRunFinished(runID, len(tasks), wallTime))
	s.logger.Info("scheduler.run.finished",
		"run_id", runID, "duration", wallTime.String(),
		"succeeded", metrics.Succeeded, "failed", metrics.Failed, "timed_out", metrics.TimedOut)

	return &core.OrchestrationResult{Tasks: records, Metrics: metrics}, ctx.Err()
}

// normalizeSpecs assigns positional IDs to unnamed specs and fails fast on
// duplicate IDs or missing factories.
func normalizeSpecs(specs []core.TaskSpec) ([]core.TaskSpec, error) {
	seen := make(map[string]struct{}, len(specs))
	out := make([]core.TaskSpec, len(specs))

	for i, spec := range specs {
		if spec.ID == "" {
			spec.ID = fmt.Sprintf("task-%d", i)
		}

		if _, dup := seen[spec.ID]; dup {
			return nil, &core.ConfigError{Field: "tasks", Message: fmt.Sprintf("duplicate task id %q", spec.ID)}
		}
		seen[spec.ID] = struct{}{}

		if spec.Factory == nil {
			return nil, &core.ConfigError{Field: "tasks", Message: fmt.Sprintf("task %q has no worker factory", spec.ID)}
		}

		out[i] = spec
	}

	return out, nil
}

// admissionOrder fixes the initial enqueue order. Round robin admits in input
// order; shortest first orders by ascending prompt length, stable on input
// order. Retries always re-enter at the queue tail regardless of mode.
func admissionOrder(tasks []*taskState, fairness core.Fairness) []*taskState {
	ordered := make([]*taskState, len(tasks))
	copy(ordered, tasks)

	if fairness == core.FairnessShortestFirst {
		sort.SliceStable(ordered, func(i, j int) bool {
			return len(ordered[i].spec.Prompt) < len(ordered[j].spec.Prompt)
		})
	}

	return ordered
}

// runAttempt performs one attempt of ts inside a pool slot: fresh worker,
// started/finished event pair, then either finalization or an off-slot retry.
func (s *Scheduler) runAttempt(
	runCtx context.Context,
	rc *core.RunContext,
	ts *taskState,
	policy core.OrchestrationPolicy,
	pending *sync.WaitGroup,
	queue chan<- *taskState,
	cancelRun context.CancelFunc,
) {
	if runCtx.Err() != nil {
		s.fastFail(runCtx, ts, pending)
		return
	}

	ts.attempt++
	attempt := ts.attempt

	agent := ts.spec.Factory.Name()

	worker, factoryErr := ts.spec.Factory.New(rc)
	if factoryErr == nil && worker != nil {
		agent = worker.Name()
	}
	ts.agent = agent

	started := time.Now().UTC()
	if ts.started.IsZero() {
		ts.started = started
	}

	s.bus.Publish(telemetry.NewTaskStarted(ts.id, agent, attempt))
	s.logger.Debug("scheduler.attempt.started", "task_id", ts.id, "agent", agent, "attempt", attempt)

	var (
		result     *core.Result
		outcome    core.TaskStatus
		attemptErr error
	)

	if factoryErr != nil {
		// Construction failure counts as a failed attempt and is retried
		// like any other attempt error.
		outcome = core.TaskStatusFailed
		attemptErr = fmt.Errorf("create worker: %w", factoryErr)
	} else {
		result, outcome, attemptErr = s.execute(runCtx, worker, ts, policy.Timeout, agent, attempt, started)
	}

	duration := time.Since(started)

	errMsg := ""
	if attemptErr != nil {
		errMsg = attemptErr.Error()
		ts.errors = append(ts.errors, errMsg)
	}

	s.bus.Publish(telemetry.NewTaskFinished(ts.id, agent, attempt, outcome, duration, errMsg, result))
	s.logger.Debug("scheduler.attempt.finished",
		"task_id", ts.id, "attempt", attempt, "status", string(outcome),
		"duration", duration.String(), "error", errMsg)

	if outcome == core.TaskStatusSuccess {
		ts.result = result
		s.finalize(ts, core.TaskStatusSuccess, pending)
		return
	}

	// Provisional terminal status: if the run is canceled while the retry
	// delay elapses, the task keeps its latest outcome.
	ts.status = outcome

	if policy.Retry.ShouldRetry(attempt) && runCtx.Err() == nil {
		delay := policy.Retry.Delay(attempt)
		s.logger.Debug("scheduler.retry.scheduled", "task_id", ts.id, "attempt", attempt, "delay", delay.String())
		go s.awaitRetry(runCtx, ts, delay, queue, pending)
		return
	}

	s.finalize(ts, outcome, pending)

	if policy.Cancellation == core.CancellationCascading {
		s.logger.Warn("scheduler.run.cascading_cancel", "task_id", ts.id, "status", string(outcome))
		cancelRun()
	}
}

// execute runs a single attempt under the per-attempt timeout, racing the
// worker against the clock. The worker runs in its own goroutine; on timeout
// the attempt is abandoned immediately and the goroutine's eventual outcome
// is discarded, so a stuck worker never gates scheduler progress.
func (s *Scheduler) execute(
	runCtx context.Context,
	worker core.Worker,
	ts *taskState,
	timeout time.Duration,
	agent string,
	attempt int,
	started time.Time,
) (*core.Result, core.TaskStatus, error) {
	attemptCtx := runCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	hbCtx, stopHeartbeat := context.WithCancel(attemptCtx)
	defer stopHeartbeat()

	go s.heartbeat(hbCtx, ts.id, agent, attempt, started)

	type attemptOutcome struct {
		result *core.Result
		err    error
	}

	// Buffered so an abandoned worker can deliver its late outcome and exit.
	done := make(chan attemptOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptOutcome{err: fmt.Errorf("worker panic: %v", r)}
			}
		}()

		result, err := worker.Run(attemptCtx, ts.spec.Prompt, ts.spec.Params)
		done <- attemptOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) && attemptCtx.Err() != nil {
				return nil, core.TaskStatusTimeout, fmt.Errorf("attempt timed out after %s", timeout)
			}
			return nil, core.TaskStatusFailed, out.err
		}
		return out.result, core.TaskStatusSuccess, nil

	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, core.TaskStatusTimeout, fmt.Errorf("attempt timed out after %s", timeout)
		}
		return nil, core.TaskStatusFailed, fmt.Errorf("orchestration canceled: %w", context.Cause(attemptCtx))
	}
}

// heartbeat publishes liveness events for a running attempt until it ends.
func (s *Scheduler) heartbeat(ctx context.Context, taskID, agent string, attempt int, started time.Time) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.bus.Publish(telemetry.NewHeartbeat(taskID, agent, attempt, time.Since(started)))
		}
	}
}

// awaitRetry holds a task outside the pool while its backoff delay elapses,
// then re-enqueues it at the queue tail. No worker slot is held during the
// wait. If the run is canceled first, the task finalizes with its latest
// outcome instead of re-entering.
func (s *Scheduler) awaitRetry(runCtx context.Context, ts *taskState, delay time.Duration, queue chan<- *taskState, pending *sync.WaitGroup) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		queue <- ts
	case <-runCtx.Done():
		s.logger.Debug("scheduler.retry.aborted", "task_id", ts.id, "status", string(ts.status))
		s.finalize(ts, ts.status, pending)
	}
}

// fastFail finalizes a task that a canceled run will never execute. Tasks
// with attempt history keep their latest outcome without a new event pair;
// never-started tasks get a single synthetic attempt recording the
// cancellation so every task still carries a started/finished pair.
func (s *Scheduler) fastFail(runCtx context.Context, ts *taskState, pending *sync.WaitGroup) {
	if ts.attempt > 0 {
		s.finalize(ts, ts.status, pending)
		return
	}

	ts.attempt = 1
	ts.agent = ts.spec.Factory.Name()
	ts.started = time.Now().UTC()

	err := fmt.Errorf("orchestration canceled: %w", context.Cause(runCtx))
	ts.errors = append(ts.errors, err.Error())

	s.bus.Publish(telemetry.NewTaskStarted(ts.id, ts.agent, 1))
	s.bus.Publish(telemetry.NewTaskFinished(ts.id, ts.agent, 1, core.TaskStatusFailed, 0, err.Error(), nil))

	s.finalize(ts, core.TaskStatusFailed, pending)
}

// finalize stamps the terminal state and releases the task's pending slot.
func (s *Scheduler) finalize(ts *taskState, status core.TaskStatus, pending *sync.WaitGroup) {
	ts.status = status
	ts.finished = time.Now().UTC()
	pending.Done()
}
