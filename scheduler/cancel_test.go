package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/backoff"
	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/telemetry"
)

// blockingUntilCanceled returns a factory whose worker waits for ctx and
// reports its cancellation cause.
func blockingUntilCanceled(name string) *scriptedFactory {
	return &scriptedFactory{name: name, run: func(_ int, ctx context.Context, _ string, _ map[string]any) (*core.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

func TestRunIsolatedFailureContainment(t *testing.T) {
	sched, _ := newTestScheduler()

	specs := []core.TaskSpec{
		{ID: "broken", Factory: failing("broken", "boom")},
		{ID: "alpha", Factory: succeeding("w", 30*time.Millisecond)},
		{ID: "beta", Factory: succeeding("w", 30*time.Millisecond)},
	}

	policy := quickPolicy(3, 1)
	policy.Cancellation = core.CancellationIsolated

	result, err := sched.Run(context.Background(), nil, specs, policy)
	require.NoError(t, err)

	assert.Equal(t, core.TaskStatusFailed, result.Tasks[0].Status)
	assert.Equal(t, core.TaskStatusSuccess, result.Tasks[1].Status, "siblings are unaffected")
	assert.Equal(t, core.TaskStatusSuccess, result.Tasks[2].Status)

	assert.Equal(t, 2, result.Metrics.Succeeded)
	assert.Equal(t, 1, result.Metrics.Failed)
}

func TestRunCascadingCancelsQueuedSiblings(t *testing.T) {
	sched, bus := newTestScheduler()

	specs := []core.TaskSpec{
		{ID: "broken", Factory: failing("broken", "boom")},
		{ID: "alpha", Factory: succeeding("w", 30*time.Millisecond)},
		{ID: "beta", Factory: succeeding("w", 30*time.Millisecond)},
	}

	policy := quickPolicy(1, 1)
	policy.Cancellation = core.CancellationCascading

	result, err := sched.Run(context.Background(), nil, specs, policy)
	require.NoError(t, err, "cascading cancellation is not a caller cancellation")

	broken := result.Tasks[0]
	assert.Equal(t, core.TaskStatusFailed, broken.Status)
	assert.Equal(t, []string{"boom"}, broken.Errors)

	for _, rec := range result.Tasks[1:] {
		assert.Equal(t, core.TaskStatusFailed, rec.Status)
		assert.Equal(t, 1, rec.Attempts, "queued siblings fail with a single synthetic attempt")
		require.Len(t, rec.Errors, 1)
		assert.Contains(t, rec.Errors[0], "orchestration canceled")
		assert.Nil(t, rec.Result)
	}

	assert.Equal(t, 3, result.Metrics.Failed)

	events := busEvents(t, bus)
	assert.Len(t, eventsOfType(events, telemetry.EventTaskStarted), 3,
		"fast-failed tasks still get an event pair")
	assert.Len(t, eventsOfType(events, telemetry.EventTaskFinished), 3)
	assert.Len(t, eventsOfType(events, telemetry.EventRunFinished), 1)
}

func TestRunCascadingCancelsRunningSibling(t *testing.T) {
	sched, _ := newTestScheduler()

	specs := []core.TaskSpec{
		{ID: "broken", Factory: failing("broken", "boom")},
		{ID: "alpha", Factory: blockingUntilCanceled("w")},
	}

	policy := quickPolicy(2, 3)
	policy.Cancellation = core.CancellationCascading

	started := time.Now()
	result, err := sched.Run(context.Background(), nil, specs, policy)
	elapsed := time.Since(started)

	require.NoError(t, err)
	assert.Less(t, elapsed, 2*time.Second, "the blocked sibling is released promptly")

	rec := result.Tasks[1]
	assert.Equal(t, core.TaskStatusFailed, rec.Status)
	assert.Equal(t, 1, rec.Attempts, "canceled attempts are not retried")
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], "canceled")
}

func TestRunCallerCancellation(t *testing.T) {
	sched, bus := newTestScheduler()

	specs := []core.TaskSpec{
		{ID: "running", Factory: blockingUntilCanceled("w")},
		{ID: "queued", Factory: succeeding("w", time.Millisecond)},
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	result, err := sched.Run(ctx, nil, specs, quickPolicy(1, 1))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result, "the result is complete even when the run was canceled")
	require.Len(t, result.Tasks, 2)

	running := result.Tasks[0]
	assert.Equal(t, core.TaskStatusFailed, running.Status)
	assert.Equal(t, 1, running.Attempts)
	require.Len(t, running.Errors, 1)
	assert.Contains(t, running.Errors[0], "canceled")

	queued := result.Tasks[1]
	assert.Equal(t, core.TaskStatusFailed, queued.Status)
	assert.Equal(t, 1, queued.Attempts)
	require.Len(t, queued.Errors, 1)
	assert.Contains(t, queued.Errors[0], "orchestration canceled")

	events := busEvents(t, bus)
	assert.Len(t, eventsOfType(events, telemetry.EventTaskStarted), 2)
	assert.Len(t, eventsOfType(events, telemetry.EventTaskFinished), 2)
	assert.Len(t, eventsOfType(events, telemetry.EventRunFinished), 1,
		"the run marker closes even on cancellation")
}

func TestRunCallerCancellationDuringRetryDelay(t *testing.T) {
	sched, bus := newTestScheduler()

	policy := core.OrchestrationPolicy{
		MaxConcurrency: 1,
		Retry: backoff.Policy{
			MaxAttempts: 3,
			Strategy:    backoff.StrategyFixed,
			BaseDelay:   500 * time.Millisecond,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	started := time.Now()
	result, err := sched.Run(ctx, nil, []core.TaskSpec{{ID: "alpha", Factory: failing("w", "boom")}}, policy)
	elapsed := time.Since(started)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, 400*time.Millisecond, "the retry delay is not waited out")

	rec := result.Tasks[0]
	assert.Equal(t, core.TaskStatusFailed, rec.Status, "the latest attempt outcome is kept")
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, []string{"boom"}, rec.Errors)

	assert.Len(t, eventsOfType(busEvents(t, bus), telemetry.EventTaskStarted), 1,
		"no synthetic attempt for a task with history")
}

func TestRunCallerCancellationKeepsTimeoutStatus(t *testing.T) {
	sched, _ := newTestScheduler()

	policy := core.OrchestrationPolicy{
		MaxConcurrency: 1,
		Timeout:        20 * time.Millisecond,
		Retry: backoff.Policy{
			MaxAttempts: 3,
			Strategy:    backoff.StrategyFixed,
			BaseDelay:   500 * time.Millisecond,
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(60*time.Millisecond, cancel)

	specs := []core.TaskSpec{{ID: "alpha", Factory: blockingUntilCanceled("w")}}

	result, err := sched.Run(ctx, nil, specs, policy)
	assert.ErrorIs(t, err, context.Canceled)

	rec := result.Tasks[0]
	assert.Equal(t, core.TaskStatusTimeout, rec.Status,
		"a task canceled mid-delay keeps its timeout outcome")
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, 1, result.Metrics.TimedOut)
}
