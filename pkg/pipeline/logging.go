package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents the severity level of log messages
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

var levelColors = map[LogLevel]*color.Color{
	DebugLevel: color.New(color.FgHiBlack),
	InfoLevel:  color.New(color.FgCyan),
	WarnLevel:  color.New(color.FgYellow),
	ErrorLevel: color.New(color.FgRed),
	FatalLevel: color.New(color.FgRed, color.Bold),
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Error creates an error field
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

// StructuredLogger implements the Logger interface with structured logging
type StructuredLogger struct {
	level        LogLevel
	format       string
	output       io.Writer
	fields       map[string]interface{}
	mu           *sync.Mutex
	enableCaller bool
}

// NewStructuredLogger creates a new structured logger. Output is stdout,
// stderr, or a file path opened in append mode; a file that cannot be opened
// falls back to stdout.
func NewStructuredLogger(config LoggingConfig) *StructuredLogger {
	var output io.Writer = os.Stdout
	switch config.Output {
	case "", "stdout":
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("Failed to open log file %s, using stdout: %v", config.Output, err)
		} else {
			output = f
		}
	}

	return &StructuredLogger{
		level:        parseLogLevel(config.Level),
		format:       config.Format,
		output:       output,
		fields:       make(map[string]interface{}),
		mu:           &sync.Mutex{},
		enableCaller: config.Format == "json",
	}
}

// parseLogLevel converts string log level to LogLevel
func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// Debug logs a debug message
func (l *StructuredLogger) Debug(msg string, fields ...Field) {
	if l.level <= DebugLevel {
		l.log(DebugLevel, msg, fields...)
	}
}

// Info logs an info message
func (l *StructuredLogger) Info(msg string, fields ...Field) {
	if l.level <= InfoLevel {
		l.log(InfoLevel, msg, fields...)
	}
}

// Warn logs a warning message
func (l *StructuredLogger) Warn(msg string, fields ...Field) {
	if l.level <= WarnLevel {
		l.log(WarnLevel, msg, fields...)
	}
}

// Error logs an error message
func (l *StructuredLogger) Error(msg string, fields ...Field) {
	if l.level <= ErrorLevel {
		l.log(ErrorLevel, msg, fields...)
	}
}

// Fatal logs a fatal message and exits
func (l *StructuredLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields...)
	os.Exit(1)
}

// With creates a new logger with additional fields. The child shares the
// parent's output and write lock.
func (l *StructuredLogger) With(fields ...Field) Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for _, field := range fields {
		newFields[field.Key] = field.Value
	}

	return &StructuredLogger{
		level:        l.level,
		format:       l.format,
		output:       l.output,
		fields:       newFields,
		mu:           l.mu,
		enableCaller: l.enableCaller,
	}
}

func (l *StructuredLogger) log(level LogLevel, msg string, fields ...Field) {
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
		Fields:    make(map[string]interface{}, len(l.fields)+len(fields)),
	}

	for k, v := range l.fields {
		entry.Fields[k] = v
	}
	for _, field := range fields {
		entry.Fields[field.Key] = field.Value
	}

	if l.enableCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			entry.Caller = fmt.Sprintf("%s:%d", file, line)
		}
	}

	var output string
	switch l.format {
	case "json":
		if data, err := json.Marshal(entry); err == nil {
			output = string(data) + "\n"
		} else {
			output = fmt.Sprintf("ERROR: Failed to marshal log entry: %v\n", err)
		}
	case "console":
		output = l.formatText(entry, levelColors[level])
	default:
		output = l.formatText(entry, nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(output))
}

// formatText formats log entry as human-readable text, with keys sorted so
// lines are stable across runs
func (l *StructuredLogger) formatText(entry LogEntry, c *color.Color) string {
	var builder strings.Builder

	builder.WriteString(entry.Timestamp.Format("2006-01-02 15:04:05.000"))
	builder.WriteString(" ")
	level := "[" + entry.Level + "]"
	if c != nil {
		level = c.Sprint(level)
	}
	builder.WriteString(level)
	builder.WriteString(" ")
	builder.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		builder.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				builder.WriteString(", ")
			}
			builder.WriteString(k)
			builder.WriteString("=")
			builder.WriteString(fmt.Sprintf("%v", entry.Fields[k]))
		}
		builder.WriteString("}")
	}

	if entry.Caller != "" {
		builder.WriteString(" (")
		builder.WriteString(entry.Caller)
		builder.WriteString(")")
	}

	builder.WriteString("\n")
	return builder.String()
}

// SetLevel sets the minimum log level
func (l *StructuredLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *StructuredLogger) GetLevel() LogLevel {
	return l.level
}

// DefaultLogger creates a default console logger
func DefaultLogger() Logger {
	return NewStructuredLogger(LoggingConfig{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	})
}

// NullLogger creates a logger that discards all output (useful for testing)
func NullLogger() Logger {
	logger := NewStructuredLogger(LoggingConfig{
		Level:  "fatal",
		Format: "json",
		Output: "stdout",
	})
	logger.output = io.Discard
	return logger
}

// NewWriterLogger creates a logger writing text lines to w
func NewWriterLogger(w io.Writer, level string) *StructuredLogger {
	logger := NewStructuredLogger(LoggingConfig{Level: level, Format: "text"})
	logger.output = w
	return logger
}

// StdLogAdapter routes the standard log package into a structured logger
type StdLogAdapter struct {
	logger Logger
}

// NewStdLogAdapter creates a new adapter for the standard log package
func NewStdLogAdapter(logger Logger) *StdLogAdapter {
	return &StdLogAdapter{logger: logger}
}

// Write implements io.Writer to capture standard log output
func (a *StdLogAdapter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		a.logger.Info(msg)
	}
	return len(p), nil
}

// SetAsStdLogger sets this adapter as the output for the standard log package
func (a *StdLogAdapter) SetAsStdLogger() {
	log.SetOutput(a)
	log.SetFlags(0)
}
