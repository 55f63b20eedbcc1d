package worker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// MockOptions configures the simulated behavior of a Mock worker.
type MockOptions struct {
	// FailureRate is the probability in [0, 1] that an execution fails with a
	// simulated error. Out-of-range values are clamped.
	FailureRate float64
	// MinDuration and MaxDuration bound the simulated latency, drawn
	// uniformly per execution.
	MinDuration time.Duration
	MaxDuration time.Duration
	// Models are the model names reported on successful results, one drawn
	// per execution. Cost accounting picks them up downstream.
	Models []string
	// Seed fixes the randomness source for reproducible runs. Zero seeds
	// from the clock.
	Seed uint64
}

// Mock simulates an LLM-backed worker: uniform latency inside a band, a
// configurable failure rate and synthetic token usage on success. All draws
// come from a single seeded source, so a fixed Seed makes a run reproducible.
//
// A Mock is safe for concurrent use; share one instance across attempts via
// Factory so consecutive attempts see independent draws.
type Mock struct {
	name string
	opts MockOptions

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock creates a mock worker for tests and examples. Defaults mirror a
// mid-latency flaky agent: 20% failure rate, 1-5s latency.
func NewMock(name string, optFns ...func(o *MockOptions)) *Mock {
	opts := MockOptions{
		FailureRate: 0.2,
		MinDuration: time.Second,
		MaxDuration: 5 * time.Second,
		Models:      []string{"gpt-4o", "claude-3-5-sonnet", "gpt-4o-mini"},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.FailureRate < 0 {
		opts.FailureRate = 0
	}
	if opts.FailureRate > 1 {
		opts.FailureRate = 1
	}
	if opts.MaxDuration < opts.MinDuration {
		opts.MaxDuration = opts.MinDuration
	}

	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &Mock{
		name: name,
		opts: opts,
		rng:  rand.New(rand.NewPCG(seed, seed)),
	}
}

// Name returns the mock's display name.
func (m *Mock) Name() string { return m.name }

// Run simulates one execution: sleep inside the latency band (honoring ctx),
// fail with probability FailureRate, otherwise return a short summary with
// synthetic usage and a drawn model name.
func (m *Mock) Run(ctx context.Context, prompt string, _ map[string]any) (*core.Result, error) {
	duration, failed, usage, model := m.draw()

	select {
	case <-time.After(duration):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if failed {
		return nil, fmt.Errorf("%s encountered a simulated error", m.name)
	}

	return &core.Result{
		Output: fmt.Sprintf("completed task: %s", truncate(prompt, 50)),
		Model:  model,
		Usage:  usage,
	}, nil
}

// Factory returns a core.WorkerFactory that hands out this mock for every
// attempt. The shared randomness source keeps attempt outcomes independent.
func (m *Mock) Factory() core.WorkerFactory {
	return NewFactory(m.name, func(*core.RunContext) (core.Worker, error) {
		return m, nil
	})
}

// draw takes every random sample for one execution under a single lock, so
// concurrent executions each consume a consistent slice of the sequence.
func (m *Mock) draw() (duration time.Duration, failed bool, usage *core.TokenUsage, model string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	band := m.opts.MaxDuration - m.opts.MinDuration
	duration = m.opts.MinDuration
	if band > 0 {
		duration += time.Duration(m.rng.Float64() * float64(band))
	}

	failed = m.rng.Float64() < m.opts.FailureRate
	if failed {
		return duration, true, nil, ""
	}

	promptTokens := 100 + m.rng.IntN(401)
	completionTokens := 50 + m.rng.IntN(151)

	usage = &core.TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}

	if len(m.opts.Models) > 0 {
		model = m.opts.Models[m.rng.IntN(len(m.opts.Models))]
	}

	return duration, false, usage, model
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
