package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// Logger provides structured logging capabilities for the runtime and its
// components. Application events that feed the SRE dashboard go through
// logstore.Store instead.
type Logger interface {
	// Error logs an error message
	Error(args ...interface{})

	// Warn logs a warning message
	Warn(args ...interface{})

	// Info logs an informational message
	Info(args ...interface{})

	// Debug logs a debug message
	Debug(args ...interface{})

	// WithFields returns a new logger with structured fields
	WithFields(fields map[string]interface{}) Logger

	// WithContext returns a new logger with context values
	// Extracts request ID automatically
	WithContext(ctx context.Context) Logger
}

// LoggerConfig configures logger behavior
type LoggerConfig struct {
	// JSONOutput enables JSON structured output
	JSONOutput bool
	// Level sets the minimum log level (DEBUG, INFO, WARN, ERROR)
	Level string
	// Out receives DEBUG/INFO/WARN lines (default os.Stdout)
	Out io.Writer
	// ErrOut receives ERROR lines (default os.Stderr)
	ErrOut io.Writer
}

var levelRank = map[string]int{
	"DEBUG": 0,
	"INFO":  1,
	"WARN":  2,
	"ERROR": 3,
}

var levelColor = map[string]string{
	"DEBUG": "\033[90m",
	"INFO":  "\033[36m",
	"WARN":  "\033[33m",
	"ERROR": "\033[31m",
}

// defaultLogger implements Logger on top of the standard log package
type defaultLogger struct {
	loggers map[string]*log.Logger
	config  LoggerConfig
	color   bool
	fields  map[string]interface{}
}

// NewDefaultLogger creates a text logger at DEBUG level
func NewDefaultLogger() Logger {
	return NewLogger(LoggerConfig{
		JSONOutput: false,
		Level:      "DEBUG",
	})
}

// NewJSONLogger creates a logger with JSON output enabled
func NewJSONLogger() Logger {
	return NewLogger(LoggerConfig{
		JSONOutput: true,
		Level:      "DEBUG",
	})
}

// NewLogger creates a new logger with configuration
func NewLogger(config LoggerConfig) Logger {
	out := config.Out
	if out == nil {
		out = os.Stdout
	}
	errOut := config.ErrOut
	if errOut == nil {
		errOut = os.Stderr
	}
	config.Level = strings.ToUpper(config.Level)

	flags := log.LstdFlags
	if config.JSONOutput {
		flags = 0
	}

	return &defaultLogger{
		loggers: map[string]*log.Logger{
			"DEBUG": log.New(out, "", flags),
			"INFO":  log.New(out, "", flags),
			"WARN":  log.New(out, "", flags),
			"ERROR": log.New(errOut, "", flags),
		},
		config: config,
		color:  !config.JSONOutput && isTerminal(out),
		fields: make(map[string]interface{}),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// logEntry represents a structured log entry
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *defaultLogger) log(level string, message string) {
	if !l.shouldLog(level) {
		return
	}
	logger := l.loggers[level]

	if l.config.JSONOutput {
		entry := logEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     level,
			Message:   message,
		}
		if len(l.fields) > 0 {
			entry.Fields = l.fields
		}
		data, err := json.Marshal(entry)
		if err == nil {
			logger.Print(string(data))
			return
		}
		// Fallback to plain text if a field cannot be marshalled
	}

	tag := "[" + level + "]"
	if l.color {
		tag = levelColor[level] + tag + "\033[0m"
	}
	if len(l.fields) > 0 {
		logger.Printf("%s %s %s", tag, message, formatFields(l.fields))
	} else {
		logger.Printf("%s %s", tag, message)
	}
}

// formatFields renders fields as sorted key=value pairs
func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

// shouldLog checks if the level passes the configured minimum
func (l *defaultLogger) shouldLog(level string) bool {
	configLevel, ok := levelRank[l.config.Level]
	if !ok {
		configLevel = 0 // Default to DEBUG if invalid
	}
	return levelRank[level] >= configLevel
}

func (l *defaultLogger) Error(args ...interface{}) {
	l.log("ERROR", fmt.Sprint(args...))
}

func (l *defaultLogger) Warn(args ...interface{}) {
	l.log("WARN", fmt.Sprint(args...))
}

func (l *defaultLogger) Info(args ...interface{}) {
	l.log("INFO", fmt.Sprint(args...))
}

func (l *defaultLogger) Debug(args ...interface{}) {
	l.log("DEBUG", fmt.Sprint(args...))
}

// WithFields returns a new logger with structured fields
// New fields override existing ones with the same key
func (l *defaultLogger) WithFields(fields map[string]interface{}) Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &defaultLogger{
		loggers: l.loggers,
		config:  l.config,
		color:   l.color,
		fields:  newFields,
	}
}

// WithContext returns a new logger carrying the request id from ctx
func (l *defaultLogger) WithContext(ctx context.Context) Logger {
	requestID := GetRequestID(ctx)
	if requestID == "" {
		return l
	}
	return l.WithFields(map[string]interface{}{"request_id": requestID})
}
