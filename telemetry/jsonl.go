package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/logging"
)

// JSONLBusOptions configures a JSONLBus.
type JSONLBusOptions struct {
	// Redactor scrubs events before they hit the file. Defaults to the
	// built-in redactor; set to nil to persist events verbatim.
	Redactor *Redactor
	// Logger receives write/read trouble. Telemetry failures never propagate
	// to task execution.
	Logger logging.Logger
}

// JSONLBus persists events as one JSON object per line in an append-only
// file, so telemetry survives the process and stays inspectable with plain
// text tooling. Malformed lines are skipped on read.
type JSONLBus struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	redactor *Redactor
	logger   logging.Logger
}

// NewJSONLBus opens (creating if needed) the file at path for appending.
func NewJSONLBus(path string, optFns ...func(o *JSONLBusOptions)) (*JSONLBus, error) {
	opts := JSONLBusOptions{
		Redactor: NewRedactor(),
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file: %w", err)
	}

	return &JSONLBus{
		path:     path,
		file:     file,
		redactor: opts.Redactor,
		logger:   opts.Logger,
	}, nil
}

// Publish appends the event as a JSON line. Failures are logged and swallowed.
func (b *JSONLBus) Publish(ev Event) {
	if b.redactor != nil {
		ev = b.redactor.Event(ev)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("telemetry.publish.marshal_failed", "error", err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Write(append(data, '\n')); err != nil {
		b.logger.Warn("telemetry.publish.write_failed", "path", b.path, "error", err.Error())
	}
}

// Query re-reads the file and returns events with Timestamp >= since in file
// order. A positive limit keeps only the most recent events, still oldest
// first. Lines that fail to parse are skipped.
func (b *JSONLBus) Query(since time.Time, limit int) ([]Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	var matched []Event

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			b.logger.Debug("telemetry.query.skip_line", "error", err.Error())
			continue
		}
		if !ev.Timestamp.Before(since) {
			matched = append(matched, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read telemetry file: %w", err)
	}

	return tail(matched, limit), nil
}

// Close releases the underlying file handle.
func (b *JSONLBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.file.Close()
}
