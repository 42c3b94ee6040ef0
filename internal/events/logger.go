// Package events appends meter lifecycle events to a JSON lines file.
package events

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-meter/internal/util"
)

// EventType identifies a lifecycle event.
type EventType string

// Meter and source lifecycle events.
const (
	EventStarted   EventType = "started"
	EventStopped   EventType = "stopped"
	EventStale     EventType = "stale"
	EventRecovered EventType = "recovered"
	EventAlert     EventType = "alert"
	EventSilence   EventType = "silence"
)

// Event is one line of the event log.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Event     EventType `json:"event"`
	Message   string    `json:"msg,omitempty"`
	// Detail carries the alert message or silence transition.
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
	now      func() time.Time
}

// NewLogger opens filePath for appending, creating its directory if needed.
func NewLogger(filePath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, util.WrapError("create event log directory", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, util.WrapError("open event log", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
		now:      time.Now,
	}, nil
}

// Log appends ev, stamping it with the current time when Timestamp is zero.
// A nil Logger discards events.
func (l *Logger) Log(ev Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return os.ErrClosed
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	return l.encoder.Encode(ev)
}

// Close closes the log file. Closing twice is a no-op.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	return l.filePath
}

// ReadLast returns up to n events from filePath, newest first.
// A missing file yields no events.
func ReadLast(filePath string, n int) ([]Event, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Event{}, nil
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(lines))
	for i := len(lines) - 1; i >= 0; i-- {
		var ev Event
		if err := json.Unmarshal([]byte(lines[i]), &ev); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, ev)
	}
	return events, nil
}
