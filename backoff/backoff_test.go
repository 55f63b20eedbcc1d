package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDefault(t *testing.T) {
	p := Default()

	assert.Equal(t, 1, p.MaxAttempts)
	assert.Equal(t, StrategyFixed, p.Strategy)
	assert.Equal(t, 100*time.Millisecond, p.BaseDelay)
	assert.Zero(t, p.Jitter)
	assert.NoError(t, p.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr string
	}{
		{"valid fixed", Policy{MaxAttempts: 3, Strategy: StrategyFixed, BaseDelay: time.Second}, ""},
		{"valid exp", Policy{MaxAttempts: 3, Strategy: StrategyExponential, BaseDelay: time.Second, Jitter: 0.2}, ""},
		{"empty strategy is fixed", Policy{MaxAttempts: 1}, ""},
		{"zero attempts", Policy{MaxAttempts: 0}, "max_attempts"},
		{"negative attempts", Policy{MaxAttempts: -1}, "max_attempts"},
		{"negative base delay", Policy{MaxAttempts: 1, BaseDelay: -time.Second}, "base_delay"},
		{"negative jitter", Policy{MaxAttempts: 1, Jitter: -0.1}, "jitter"},
		{"negative max delay", Policy{MaxAttempts: 1, MaxDelay: -time.Second}, "max_delay"},
		{"unknown strategy", Policy{MaxAttempts: 1, Strategy: "linear"}, "unknown backoff strategy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	p := Policy{MaxAttempts: 3}

	assert.True(t, p.ShouldRetry(1))
	assert.True(t, p.ShouldRetry(2))
	assert.False(t, p.ShouldRetry(3))
	assert.False(t, p.ShouldRetry(4))

	single := Policy{MaxAttempts: 1}
	assert.False(t, single.ShouldRetry(1))
}

func TestDelayFixed(t *testing.T) {
	p := Policy{MaxAttempts: 5, Strategy: StrategyFixed, BaseDelay: 250 * time.Millisecond}

	for attempt := 1; attempt <= 4; attempt++ {
		assert.Equal(t, 250*time.Millisecond, p.Delay(attempt))
	}
}

func TestDelayExponential(t *testing.T) {
	p := Policy{MaxAttempts: 4, Strategy: StrategyExponential, BaseDelay: 100 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
}

func TestDelayJitterBounds(t *testing.T) {
	p := Policy{MaxAttempts: 4, Strategy: StrategyExponential, BaseDelay: 100 * time.Millisecond, Jitter: 0.5}

	for attempt := 1; attempt <= 3; attempt++ {
		pure := time.Duration(float64(100*time.Millisecond) * float64(int(1)<<(attempt-1)))
		for i := 0; i < 50; i++ {
			d := p.Delay(attempt)
			assert.GreaterOrEqual(t, d, pure)
			assert.LessOrEqual(t, d, time.Duration(float64(pure)*1.5))
		}
	}
}

func TestDelayMaxDelayCap(t *testing.T) {
	p := Policy{MaxAttempts: 10, Strategy: StrategyExponential, BaseDelay: time.Second, MaxDelay: 3 * time.Second}

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 3*time.Second, p.Delay(3))
	assert.Equal(t, 3*time.Second, p.Delay(8))
}

func TestDelayClampsAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 3, Strategy: StrategyExponential, BaseDelay: 100 * time.Millisecond}

	assert.Equal(t, p.Delay(1), p.Delay(0))
	assert.Equal(t, p.Delay(1), p.Delay(-5))
}

// TestProperty_DelayMonotone checks that without jitter, delays never shrink
// as the attempt number grows, for both strategies and arbitrary base delays.
func TestProperty_DelayMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Duration(rapid.Int64Range(0, int64(time.Second)).Draw(t, "base"))
		strategy := rapid.SampledFrom([]Strategy{StrategyFixed, StrategyExponential}).Draw(t, "strategy")
		attempts := rapid.IntRange(2, 20).Draw(t, "attempts")

		p := Policy{MaxAttempts: attempts, Strategy: strategy, BaseDelay: base}

		prev := p.Delay(1)
		for attempt := 2; attempt < attempts; attempt++ {
			d := p.Delay(attempt)
			if d < prev {
				t.Fatalf("delay shrank from %s to %s at attempt %d", prev, d, attempt)
			}
			prev = d
		}
	})
}

// TestProperty_JitterWithinBounds checks that jittered delays always stay in
// [pure, pure*(1+jitter)] and never exceed the cap when one is set.
func TestProperty_JitterWithinBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Duration(rapid.Int64Range(1, int64(time.Second)).Draw(t, "base"))
		jitter := rapid.Float64Range(0, 1).Draw(t, "jitter")
		attempt := rapid.IntRange(1, 15).Draw(t, "attempt")

		p := Policy{MaxAttempts: 20, Strategy: StrategyExponential, BaseDelay: base, Jitter: jitter}
		pure := time.Duration(float64(base) * float64(int64(1)<<(attempt-1)))

		d := p.Delay(attempt)
		if d < pure {
			t.Fatalf("delay %s below pure backoff %s", d, pure)
		}
		if max := time.Duration(float64(pure) * (1 + jitter)); d > max {
			t.Fatalf("delay %s above jitter ceiling %s", d, max)
		}
	})
}
