package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskmesh/core"
)

// Interface compliance (compile-time assertion)
var _ Bus = (*JSONLBus)(nil)

func newTestJSONLBus(t *testing.T) (*JSONLBus, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "telemetry.jsonl")

	bus, err := NewJSONLBus(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	return bus, path
}

func TestJSONLBusRoundTrip(t *testing.T) {
	bus, _ := newTestJSONLBus(t)
	now := time.Now().UTC()

	started := NewTaskStarted("task-1", "writer", 1)
	started.Timestamp = now.Add(-2 * time.Second)
	bus.Publish(started)

	result := &core.Result{Model: "gpt-4o", Usage: &core.TokenUsage{TotalTokens: 15}}
	finished := NewTaskFinished("task-1", "writer", 1, core.TaskStatusSuccess, 300*time.Millisecond, "", result)
	finished.Timestamp = now.Add(-time.Second)
	bus.Publish(finished)

	events, err := bus.Query(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, started.ID, events[0].ID)
	assert.Equal(t, EventTaskFinished, events[1].Type)
	assert.Equal(t, "gpt-4o", events[1].Model)
	require.NotNil(t, events[1].Usage)
	assert.Equal(t, 15, events[1].Usage.TotalTokens)
}

func TestJSONLBusRedactsBeforeWrite(t *testing.T) {
	bus, path := newTestJSONLBus(t)

	bus.Publish(NewTaskFinished("task-1", "writer", 1, core.TaskStatusFailed, 0, "denied: sk-abcdef1234567890", nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-abcdef1234567890", "secrets never reach disk")
	assert.Contains(t, string(raw), Redacted)
}

func TestJSONLBusSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")

	good, err := json.Marshal(NewTaskStarted("task-0", "writer", 1))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(good, []byte("\n{not json\n")...), 0o644))

	bus, err := NewJSONLBus(path)
	require.NoError(t, err)
	defer bus.Close()

	bus.Publish(NewTaskStarted("task-1", "writer", 1))

	events, err := bus.Query(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 2, "corrupt lines are skipped, not fatal")
	assert.Equal(t, "task-0", events[0].TaskID)
	assert.Equal(t, "task-1", events[1].TaskID)
}

func TestJSONLBusQueryMissingFile(t *testing.T) {
	bus, path := newTestJSONLBus(t)
	require.NoError(t, os.Remove(path))

	events, err := bus.Query(time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestJSONLBusQuerySinceAndLimit(t *testing.T) {
	bus, _ := newTestJSONLBus(t)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		ev := NewTaskStarted(fmt.Sprintf("task-%d", i), "writer", 1)
		ev.Timestamp = now.Add(time.Duration(i-10) * time.Minute)
		bus.Publish(ev)
	}

	events, err := bus.Query(now.Add(-8*time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "task-3", events[0].TaskID)
	assert.Equal(t, "task-4", events[1].TaskID)
}

func TestJSONLBusPublishAfterCloseIsDropped(t *testing.T) {
	bus, _ := newTestJSONLBus(t)

	bus.Publish(NewTaskStarted("task-0", "writer", 1))
	require.NoError(t, bus.Close())

	// Dropped and logged, never panics.
	bus.Publish(NewTaskStarted("task-1", "writer", 1))

	events, err := bus.Query(time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "task-0", events[0].TaskID)
}
