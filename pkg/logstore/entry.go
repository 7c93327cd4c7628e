package logstore

import (
	"time"
)

const (
	// MaxLogs caps the number of retained entries
	MaxLogs = 100
	// AppVersion is stamped on every entry
	AppVersion = "1.0.0"
	// EventAddress is the event bus address carrying newly appended entries
	EventAddress = "sre.log.event"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Level is the severity of a LogEntry
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Valid reports whether l is one of the recognised levels
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// LogEntry is an immutable structured log record
type LogEntry struct {
	Timestamp  string `json:"timestamp"`
	Level      Level  `json:"level"`
	Message    string `json:"message"`
	AppVersion string `json:"app_version"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
}

// newEntry builds an entry. An error payload lands in Error, anything else
// non-nil in Data.
func newEntry(now time.Time, level Level, message string, payload any) LogEntry {
	entry := LogEntry{
		Timestamp:  now.UTC().Format(timestampLayout),
		Level:      level,
		Message:    message,
		AppVersion: AppVersion,
	}
	switch p := payload.(type) {
	case nil:
	case error:
		entry.Error = p.Error()
	default:
		entry.Data = p
	}
	return entry
}
