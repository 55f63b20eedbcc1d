// Package backoff computes retry eligibility and delays for failed task
// attempts. It is pure: no I/O, no clocks, no shared state beyond the source
// of jitter randomness.
package backoff

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy selects how the delay grows across attempts.
type Strategy string

const (
	// StrategyFixed keeps the delay at BaseDelay for every retry. It is the
	// default when a policy leaves Strategy empty.
	StrategyFixed Strategy = "fixed"
	// StrategyExponential doubles the delay per attempt: BaseDelay * 2^(attempt-1).
	StrategyExponential Strategy = "exp"
)

// Policy describes the retry behavior for a task.
//
// MaxAttempts is the total number of attempts, so 1 means no retries. Jitter
// widens each delay by a uniform random factor in [0, Jitter], which spreads
// out retry storms when many tasks fail together. MaxDelay, when positive,
// caps the final delay.
type Policy struct {
	MaxAttempts int           `json:"max_attempts"`
	Strategy    Strategy      `json:"backoff,omitempty"`
	BaseDelay   time.Duration `json:"base_delay,omitempty"`
	Jitter      float64       `json:"jitter,omitempty"`
	MaxDelay    time.Duration `json:"max_delay,omitempty"`
}

// Default returns the canonical policy: a single attempt, fixed strategy,
// 100ms base delay and no jitter.
func Default() Policy {
	return Policy{
		MaxAttempts: 1,
		Strategy:    StrategyFixed,
		BaseDelay:   100 * time.Millisecond,
	}
}

// Validate reports the first out-of-range knob, if any.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base_delay must not be negative, got %s", p.BaseDelay)
	}
	if p.Jitter < 0 {
		return fmt.Errorf("jitter must not be negative, got %g", p.Jitter)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("max_delay must not be negative, got %s", p.MaxDelay)
	}
	switch p.strategy() {
	case StrategyFixed, StrategyExponential:
		return nil
	default:
		return fmt.Errorf("unknown backoff strategy %q", p.Strategy)
	}
}

// ShouldRetry reports whether another attempt is allowed after the given
// attempt (1-based) has failed.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Delay returns how long to wait before re-queueing a task whose given
// attempt (1-based) just failed. With Jitter zero the sequence is
// deterministic and non-decreasing in attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	if p.strategy() == StrategyExponential {
		delay = time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	}
	if p.Jitter > 0 {
		delay = time.Duration(float64(delay) * (1 + rand.Float64()*p.Jitter))
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func (p Policy) strategy() Strategy {
	if p.Strategy == "" {
		return StrategyFixed
	}
	return p.Strategy
}
