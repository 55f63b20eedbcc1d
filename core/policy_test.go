package core

import (
	"testing"
	"time"

	"github.com/hupe1980/taskmesh/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	assert.NoError(t, DefaultPolicy.Validate())
	assert.Equal(t, 4, DefaultPolicy.MaxConcurrency)
	assert.Equal(t, FairnessRoundRobin, DefaultPolicy.Fairness)
	assert.Equal(t, CancellationIsolated, DefaultPolicy.Cancellation)
	assert.Equal(t, 1, DefaultPolicy.Retry.MaxAttempts)
}

func TestPolicyNormalizeFillsDefaults(t *testing.T) {
	p, err := OrchestrationPolicy{MaxConcurrency: 2}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, FairnessRoundRobin, p.Fairness)
	assert.Equal(t, CancellationIsolated, p.Cancellation)
	assert.Equal(t, backoff.Default(), p.Retry)
}

func TestPolicyNormalizeKeepsExplicitRetry(t *testing.T) {
	retry := backoff.Policy{MaxAttempts: 3, Strategy: backoff.StrategyExponential, BaseDelay: time.Second}

	p, err := OrchestrationPolicy{MaxConcurrency: 2, Retry: retry}.Normalize()
	require.NoError(t, err)

	assert.Equal(t, retry, p.Retry)
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name      string
		policy    OrchestrationPolicy
		wantField string
	}{
		{"zero concurrency", OrchestrationPolicy{MaxConcurrency: 0, Retry: backoff.Default(), Fairness: FairnessRoundRobin, Cancellation: CancellationIsolated}, "max_concurrency"},
		{"negative timeout", OrchestrationPolicy{MaxConcurrency: 1, Retry: backoff.Default(), Timeout: -time.Second, Fairness: FairnessRoundRobin, Cancellation: CancellationIsolated}, "timeout"},
		{"bad retry", OrchestrationPolicy{MaxConcurrency: 1, Retry: backoff.Policy{MaxAttempts: 0}, Fairness: FairnessRoundRobin, Cancellation: CancellationIsolated}, "retry"},
		{"bad fairness", OrchestrationPolicy{MaxConcurrency: 1, Retry: backoff.Default(), Fairness: "priority", Cancellation: CancellationIsolated}, "fairness"},
		{"bad cancellation", OrchestrationPolicy{MaxConcurrency: 1, Retry: backoff.Default(), Fairness: FairnessRoundRobin, Cancellation: "group"}, "cancellation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			require.Error(t, err)

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := &ConfigError{Field: "max_concurrency", Message: "must be >= 1, got 0"}

	assert.Equal(t, `invalid configuration for "max_concurrency": must be >= 1, got 0`, err.Error())
}

func TestTaskRecordDuration(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := TaskRecord{StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}

	assert.Equal(t, 1500*time.Millisecond, rec.Duration())
}
