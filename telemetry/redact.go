package telemetry

import (
	"regexp"
	"strings"
)

// Redacted replaces sensitive values in stored telemetry.
const Redacted = "[REDACTED]"

// defaultSensitiveKeys are map keys whose values are always scrubbed,
// matched case-insensitively.
var defaultSensitiveKeys = []string{
	"api_key",
	"apikey",
	"authorization",
	"token",
	"access_token",
	"refresh_token",
	"secret",
	"password",
	"openai_api_key",
	"anthropic_api_key",
}

// defaultSecretPatterns match well-known credential formats inside free text.
var defaultSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9_\-]{10,}`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`xox[baprs]-[A-Za-z0-9\-]{10,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z\-_]{30,}`),
}

// RedactorOptions configures a Redactor.
type RedactorOptions struct {
	// ExtraKeys extends the sensitive key set.
	ExtraKeys []string
	// ExtraPatterns extends the credential patterns.
	ExtraPatterns []*regexp.Regexp
}

// Redactor scrubs credentials from telemetry payloads before they are stored.
// Buses apply it on Publish so secrets that leak into error messages or
// parameter maps never reach the event store.
type Redactor struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

// NewRedactor creates a Redactor with the built-in key set and credential
// patterns, optionally extended.
func NewRedactor(optFns ...func(o *RedactorOptions)) *Redactor {
	opts := RedactorOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	keys := make(map[string]struct{}, len(defaultSensitiveKeys)+len(opts.ExtraKeys))
	for _, k := range defaultSensitiveKeys {
		keys[k] = struct{}{}
	}
	for _, k := range opts.ExtraKeys {
		keys[strings.ToLower(k)] = struct{}{}
	}

	patterns := make([]*regexp.Regexp, 0, len(defaultSecretPatterns)+len(opts.ExtraPatterns))
	patterns = append(patterns, defaultSecretPatterns...)
	patterns = append(patterns, opts.ExtraPatterns...)

	return &Redactor{keys: keys, patterns: patterns}
}

// String replaces credential-shaped substrings with the redaction placeholder.
func (r *Redactor) String(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, Redacted)
	}
	return s
}

// Map returns a deep copy of m with sensitive keys blanked and string values
// scrubbed. Nested maps and slices are walked recursively.
func (r *Redactor) Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, sensitive := r.keys[strings.ToLower(k)]; sensitive {
			out[k] = Redacted
			continue
		}
		out[k] = r.value(v)
	}
	return out
}

func (r *Redactor) value(v any) any {
	switch tv := v.(type) {
	case string:
		return r.String(tv)
	case map[string]any:
		return r.Map(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = r.value(item)
		}
		return out
	default:
		return v
	}
}

// Event returns a copy of ev with free-text fields scrubbed.
func (r *Redactor) Event(ev Event) Event {
	ev.Error = r.String(ev.Error)
	return ev
}
