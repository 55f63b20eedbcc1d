package telemetry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/pricing"
)

const (
	// DefaultWindow is the report window when none is given.
	DefaultWindow = time.Hour

	// defaultRunningTasksCap bounds the running_tasks list in reports.
	defaultRunningTasksCap = 10

	// Attempt durations are recorded in microseconds, capped at one hour.
	histogramMin  = 1
	histogramMax  = int64(time.Hour / time.Microsecond)
	histogramSigs = 3
)

// ReportMetrics counts raw event traffic inside the window.
type ReportMetrics struct {
	TotalEvents   int `json:"total_events"`
	TasksStarted  int `json:"tasks_started"`
	TasksFinished int `json:"tasks_finished"`
}

// RunningTask describes an attempt that started inside the window and has not
// finished yet.
type RunningTask struct {
	ID      string  `json:"id"`
	Agent   string  `json:"agent"`
	Attempt int     `json:"attempt"`
	AgeS    float64 `json:"age_s"`
	// LastHeartbeatAgeS is nil when the attempt has not emitted a heartbeat yet.
	LastHeartbeatAgeS *float64 `json:"last_heartbeat_age_s,omitempty"`
}

// ResultCounts partitions finished attempts by outcome.
type ResultCounts struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Timeout int `json:"timeout"`
}

// DurationStats summarizes attempt durations in milliseconds.
type DurationStats struct {
	P50Ms   float64 `json:"p50_ms"`
	P90Ms   float64 `json:"p90_ms"`
	P99Ms   float64 `json:"p99_ms"`
	MaxMs   float64 `json:"max_ms"`
	Samples int     `json:"samples"`
}

// Resources relates current load to the configured capacity of the most
// recent run.
type Resources struct {
	MaxConcurrency int     `json:"max_concurrency"`
	Running        int     `json:"running"`
	Utilization    float64 `json:"utilization"`
}

// Costs accumulates worker-reported token usage, priced by the rate table.
type Costs struct {
	TotalTokens int     `json:"total_tokens"`
	TotalUSD    float64 `json:"total_usd"`
}

// Report is a point-in-time condensation of the telemetry stream.
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Window      string        `json:"window"`
	Metrics     ReportMetrics `json:"metrics"`
	// AgentsActive lists agents with an attempt still open in the window.
	AgentsActive  []string      `json:"agents_active"`
	RunningTasks  []RunningTask `json:"running_tasks"`
	RecentResults ResultCounts  `json:"recent_results"`
	// Durations is nil when no attempt finished inside the window.
	Durations *DurationStats `json:"durations,omitempty"`
	Resources Resources      `json:"resources"`
	Costs     Costs          `json:"costs"`
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	// Rates prices worker-reported token usage. Defaults to pricing.DefaultTable.
	Rates pricing.Table

	// RunningTasksCap bounds the running_tasks list in reports. Defaults to 10.
	RunningTasksCap int

	// Logger for diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// Aggregator condenses raw bus events into operational reports. It keeps no
// state between calls; every report is derived from a fresh bus query, so it
// can run concurrently with publishers.
type Aggregator struct {
	bus             Bus
	rates           pricing.Table
	runningTasksCap int
	logger          logging.Logger
}

// NewAggregator creates an aggregator reading from the given bus.
func NewAggregator(bus Bus, optFns ...func(o *AggregatorOptions)) *Aggregator {
	opts := AggregatorOptions{
		Rates:           pricing.DefaultTable(),
		RunningTasksCap: defaultRunningTasksCap,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.RunningTasksCap <= 0 {
		opts.RunningTasksCap = defaultRunningTasksCap
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Aggregator{
		bus:             bus,
		rates:           opts.Rates,
		runningTasksCap: opts.RunningTasksCap,
		logger:          opts.Logger,
	}
}

// Aggregate builds a report over events whose timestamp falls inside the
// trailing window. A non-positive window falls back to DefaultWindow.
func (a *Aggregator) Aggregate(window time.Duration) (*Report, error) {
	if window <= 0 {
		window = DefaultWindow
	}

	now := time.Now().UTC()

	events, err := a.bus.Query(now.Add(-window), 0)
	if err != nil {
		return nil, fmt.Errorf("query telemetry bus: %w", err)
	}

	report := &Report{
		GeneratedAt:  now,
		Window:       formatWindow(window),
		AgentsActive: []string{},
		RunningTasks: []RunningTask{},
	}
	report.Metrics.TotalEvents = len(events)

	// Latest unmatched task_started per task. A task_finished for the same
	// attempt closes it; retries reopen it under the next attempt number.
	open := make(map[string]Event)
	lastHeartbeat := make(map[string]Event)

	hist := hdrhistogram.New(histogramMin, histogramMax, histogramSigs)

	var latestRunStart Event

	for _, ev := range events {
		switch ev.Type {
		case EventTaskStarted:
			report.Metrics.TasksStarted++
			open[ev.TaskID] = ev

		case EventTaskFinished:
			report.Metrics.TasksFinished++

			if started, ok := open[ev.TaskID]; ok && started.Attempt == ev.Attempt {
				delete(open, ev.TaskID)
				delete(lastHeartbeat, ev.TaskID)
			}

			switch ev.Status {
			case core.TaskStatusSuccess:
				report.RecentResults.Success++
			case core.TaskStatusTimeout:
				report.RecentResults.Timeout++
			default:
				report.RecentResults.Failed++
			}

			if micros := int64(ev.DurationS * float64(time.Second/time.Microsecond)); micros > 0 {
				if micros > histogramMax {
					micros = histogramMax
				}

				if err := hist.RecordValue(micros); err != nil {
					a.logger.Debug("telemetry.aggregate.histogram_record_failed", "error", err)
				}
			}

			if ev.Usage != nil {
				report.Costs.TotalTokens += ev.Usage.TotalTokens
				report.Costs.TotalUSD += a.rates.Cost(ev.Model, ev.Usage.TotalTokens)
			}

		case EventHeartbeat:
			lastHeartbeat[ev.TaskID] = ev

		case EventRunStarted:
			if ev.Timestamp.After(latestRunStart.Timestamp) {
				latestRunStart = ev
			}
		}
	}

	agents := make(map[string]struct{})

	for id, started := range open {
		if started.Agent != "" {
			agents[started.Agent] = struct{}{}
		}

		rt := RunningTask{
			ID:      id,
			Agent:   started.Agent,
			Attempt: started.Attempt,
			AgeS:    now.Sub(started.Timestamp).Seconds(),
		}

		if hb, ok := lastHeartbeat[id]; ok && hb.Attempt == started.Attempt {
			age := now.Sub(hb.Timestamp).Seconds()
			rt.LastHeartbeatAgeS = &age
		}

		report.RunningTasks = append(report.RunningTasks, rt)
	}

	// Oldest attempts first, so stuck tasks surface even when the list is capped.
	sort.Slice(report.RunningTasks, func(i, j int) bool {
		if report.RunningTasks[i].AgeS != report.RunningTasks[j].AgeS {
			return report.RunningTasks[i].AgeS > report.RunningTasks[j].AgeS
		}
		return report.RunningTasks[i].ID < report.RunningTasks[j].ID
	})

	report.Resources.Running = len(report.RunningTasks)

	if len(report.RunningTasks) > a.runningTasksCap {
		report.RunningTasks = report.RunningTasks[:a.runningTasksCap]
	}

	for agent := range agents {
		report.AgentsActive = append(report.AgentsActive, agent)
	}

	sort.Strings(report.AgentsActive)

	if hist.TotalCount() > 0 {
		report.Durations = &DurationStats{
			P50Ms:   float64(hist.ValueAtQuantile(50)) / 1000,
			P90Ms:   float64(hist.ValueAtQuantile(90)) / 1000,
			P99Ms:   float64(hist.ValueAtQuantile(99)) / 1000,
			MaxMs:   float64(hist.Max()) / 1000,
			Samples: int(hist.TotalCount()),
		}
	}

	if latestRunStart.MaxConcurrency > 0 {
		report.Resources.MaxConcurrency = latestRunStart.MaxConcurrency

		utilization := float64(report.Resources.Running) / float64(latestRunStart.MaxConcurrency)
		if utilization > 1 {
			utilization = 1
		}

		report.Resources.Utilization = utilization
	}

	return report, nil
}

// ListEvents returns up to limit events from the trailing window, oldest
// first. A non-positive window falls back to DefaultWindow; a non-positive
// limit returns every event in the window.
func (a *Aggregator) ListEvents(window time.Duration, limit int) ([]Event, error) {
	if window <= 0 {
		window = DefaultWindow
	}

	events, err := a.bus.Query(time.Now().UTC().Add(-window), limit)
	if err != nil {
		return nil, fmt.Errorf("query telemetry bus: %w", err)
	}

	return events, nil
}

// ParseWindow converts a human window spec into a duration. Accepted forms
// are "15m", "2h", "7d", a bare number of hours, or "" for DefaultWindow.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return DefaultWindow, nil
	}

	if hours, err := strconv.Atoi(s); err == nil {
		if hours <= 0 {
			return 0, fmt.Errorf("window must be positive, got %q", s)
		}
		return time.Duration(hours) * time.Hour, nil
	}

	unit := time.Duration(0)

	switch s[len(s)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid window %q, expected forms like 15m, 2h or 7d", s)
	}

	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid window %q, expected forms like 15m, 2h or 7d", s)
	}

	return time.Duration(value) * unit, nil
}

// formatWindow renders durations the way windows are written, e.g. 1h instead
// of 1h0m0s.
func formatWindow(d time.Duration) string {
	s := d.String()

	if strings.HasSuffix(s, "m0s") {
		s = s[:len(s)-2]
	}

	if strings.HasSuffix(s, "h0m") {
		s = s[:len(s)-2]
	}

	return s
}
