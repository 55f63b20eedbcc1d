// Package pricing maps model identifiers to per-token dollar rates for
// telemetry cost accounting. Rate tables are static external configuration:
// build one in code, or load it from YAML.
package pricing

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the table entry used when no other entry matches.
const DefaultKey = "default"

// fallbackRate applies when a table has no default entry either.
const fallbackRate = 0.00001

// Table maps model name fragments to USD-per-token rates. Lookup is by
// case-insensitive substring, so one "gpt-4" entry covers gpt-4o, gpt-4o-mini
// and friends.
type Table map[string]float64

// DefaultTable returns the built-in rate table. Rates are rough blended
// prompt/completion averages, good enough for operational cost tracking.
func DefaultTable() Table {
	return Table{
		"gpt-4":    0.00006,
		"gpt-3.5":  0.000002,
		"claude":   0.000008,
		DefaultKey: 0.00001,
	}
}

// Rate returns the USD-per-token rate for the given model. An exact
// (case-insensitive) key wins, then the first matching substring entry in
// unspecified order, then the table's default entry, then the built-in
// fallback.
func (t Table) Rate(model string) float64 {
	m := strings.ToLower(model)

	if rate, ok := t[m]; ok {
		return rate
	}
	for key, rate := range t {
		if key == DefaultKey {
			continue
		}
		if key != "" && strings.Contains(m, strings.ToLower(key)) {
			return rate
		}
	}
	if rate, ok := t[DefaultKey]; ok {
		return rate
	}
	return fallbackRate
}

// Cost prices a token count against the model's rate.
func (t Table) Cost(model string, tokens int) float64 {
	return t.Rate(model) * float64(tokens)
}

// Validate rejects negative rates.
func (t Table) Validate() error {
	for key, rate := range t {
		if rate < 0 {
			return fmt.Errorf("rate for %q must not be negative, got %g", key, rate)
		}
	}
	return nil
}

// Parse reads a YAML document of model -> USD-per-token pairs:
//
//	gpt-4: 0.00006
//	claude: 0.000008
//	default: 0.00001
func Parse(data []byte) (Table, error) {
	raw := map[string]float64{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse rate table: %w", err)
	}

	t := make(Table, len(raw))
	for key, rate := range raw {
		t[strings.ToLower(key)] = rate
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// LoadFile reads a YAML rate table from disk.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate table: %w", err)
	}
	return Parse(data)
}
