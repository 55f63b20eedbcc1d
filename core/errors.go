package core

import "fmt"

// ConfigError reports an invalid policy or batch configuration. It is the only
// error class that aborts an entire run; it is always returned before any task
// has started and before any telemetry has been published.
type ConfigError struct {
	// Field names the offending policy knob or spec attribute.
	Field string `json:"field"`
	// Message explains the violation.
	Message string `json:"message"`
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %q: %s", e.Field, e.Message)
}
