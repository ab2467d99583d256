package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventRunStart  EventType = "run_start"
	EventRunEnd    EventType = "run_end"
	EventFolder    EventType = "folder"
	EventLog       EventType = "log"
	EventAudioSkip EventType = "audio_skip"
	EventDateTag   EventType = "date_tag"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event represents a single event of a batch run
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	RunID      string            `json:"run_id,omitempty"`
	Folder     string            `json:"folder,omitempty"`
	ExternalID int64             `json:"external_id,omitempty"`
	Log        string            `json:"log,omitempty"`
	Revision   int               `json:"revision,omitempty"`
	Outcome    string            `json:"outcome,omitempty"`
	Hash       string            `json:"hash,omitempty"`
	Tag        string            `json:"tag,omitempty"`
	Duration   int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events of one run to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level.
// Every logger gets a fresh run id which is stamped on each event.
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	runID := uuid.New().String()
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s-%s.jsonl", timestamp, runID[:8])
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    runID,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogRunStart marks the beginning of a batch run
func (l *EventLogger) LogRunStart(kind string, extra map[string]string) error {
	if extra == nil {
		extra = map[string]string{}
	}
	extra["kind"] = kind
	return l.Log(&Event{
		Level: LevelInfo,
		Event: EventRunStart,
		Extra: extra,
	})
}

// LogRunEnd marks the end of a batch run with its counters
func (l *EventLogger) LogRunEnd(duration time.Duration, counters map[string]int) error {
	extra := make(map[string]string, len(counters))
	for k, v := range counters {
		extra[k] = fmt.Sprintf("%d", v)
	}
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventRunEnd,
		Duration: duration.Milliseconds(),
		Extra:    extra,
	})
}

// LogFolder logs the registration of one remote folder
func (l *EventLogger) LogFolder(name string, externalID int64, outcome string, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:      level,
		Event:      EventFolder,
		Folder:     name,
		ExternalID: externalID,
		Outcome:    outcome,
		Error:      errMsg,
	})
}

// LogIngest logs the ingestion of one log
func (l *EventLogger) LogIngest(folder, log string, revision int, outcome, hash string, duration time.Duration, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventLog,
		Folder:   folder,
		Log:      log,
		Revision: revision,
		Outcome:  outcome,
		Hash:     hash,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
	})
}

// LogAudioSkip logs a folder entry that sync does not fetch
func (l *EventLogger) LogAudioSkip(folder, entry string) error {
	return l.Log(&Event{
		Level:   LevelWarning,
		Event:   EventAudioSkip,
		Folder:  folder,
		Log:     entry,
		Outcome: "unsupported",
	})
}

// LogDateTag logs a date tag assigned by the auto-tagging procedure
func (l *EventLogger) LogDateTag(log, tag string) error {
	return l.Log(&Event{
		Level: LevelInfo,
		Event: EventDateTag,
		Log:   log,
		Tag:   tag,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, subject string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Log:   subject,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// RunID returns the id stamped on this logger's events
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
