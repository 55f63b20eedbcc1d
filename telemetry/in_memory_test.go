package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ Bus = (*InMemoryBus)(nil)

func publishAt(t *testing.T, bus *InMemoryBus, taskID string, at time.Time) Event {
	t.Helper()

	ev := NewTaskStarted(taskID, "mock", 1)
	ev.Timestamp = at.UTC()
	bus.Publish(ev)

	return ev
}

func TestInMemoryBusPublishAndQuery(t *testing.T) {
	bus := NewInMemoryBus()
	now := time.Now().UTC()

	first := publishAt(t, bus, "task-0", now.Add(-3*time.Second))
	second := publishAt(t, bus, "task-1", now.Add(-2*time.Second))
	third := publishAt(t, bus, "task-2", now.Add(-time.Second))

	events, err := bus.Query(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, first.ID, events[0].ID, "publish order is preserved")
	assert.Equal(t, second.ID, events[1].ID)
	assert.Equal(t, third.ID, events[2].ID)
}

func TestInMemoryBusQuerySince(t *testing.T) {
	bus := NewInMemoryBus()
	now := time.Now().UTC()

	publishAt(t, bus, "old", now.Add(-2*time.Hour))
	kept := publishAt(t, bus, "fresh", now.Add(-time.Minute))
	boundary := publishAt(t, bus, "boundary", now.Add(-time.Hour))

	events, err := bus.Query(now.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, kept.ID, events[0].ID)
	assert.Equal(t, boundary.ID, events[1].ID, "events exactly at the cutoff are included")
}

func TestInMemoryBusQueryLimitKeepsMostRecent(t *testing.T) {
	bus := NewInMemoryBus()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		publishAt(t, bus, fmt.Sprintf("task-%d", i), now.Add(time.Duration(i)*time.Millisecond))
	}

	events, err := bus.Query(time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "task-3", events[0].TaskID, "the most recent N events, oldest first")
	assert.Equal(t, "task-4", events[1].TaskID)
}

func TestInMemoryBusRedactsOnPublish(t *testing.T) {
	bus := NewInMemoryBus()

	bus.Publish(NewTaskFinished("task-1", "mock", 1, "failed", 0, "denied: sk-abcdef1234567890", nil))

	events, err := bus.Query(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "denied: "+Redacted, events[0].Error)
}

func TestInMemoryBusRedactionDisabled(t *testing.T) {
	bus := NewInMemoryBus(func(o *InMemoryBusOptions) {
		o.Redactor = nil
	})

	bus.Publish(NewTaskFinished("task-1", "mock", 1, "failed", 0, "denied: sk-abcdef1234567890", nil))

	events, err := bus.Query(time.Time{}, 0)
	require.NoError(t, err)
	assert.Contains(t, events[0].Error, "sk-abcdef1234567890")
}

func TestInMemoryBusDropsOldestBeyondCap(t *testing.T) {
	bus := NewInMemoryBus(func(o *InMemoryBusOptions) {
		o.MaxEvents = 3
	})
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		publishAt(t, bus, fmt.Sprintf("task-%d", i), now.Add(time.Duration(i)*time.Millisecond))
	}

	assert.Equal(t, 3, bus.Len())

	events, err := bus.Query(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "task-2", events[0].TaskID, "oldest events are dropped first")
	assert.Equal(t, "task-4", events[2].TaskID)
}

func TestInMemoryBusConcurrentPublish(t *testing.T) {
	bus := NewInMemoryBus()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bus.Publish(NewTaskStarted(fmt.Sprintf("task-%d", i), "mock", 1))
			if _, err := bus.Query(time.Time{}, 5); err != nil {
				t.Errorf("query error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 25, bus.Len())
}
