package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a deliberately small, framework-agnostic logging interface.
// Implementations live in this package so the rest of the codebase only
// depends on the contract.
type Logger interface {
	// Debug logs a debug-level message.
	Debug(msg string, fields ...Field)

	// Info logs an informational message.
	Info(msg string, fields ...Field)

	// Warn logs a warning.
	Warn(msg string, fields ...Field)

	// Error logs an error.
	Error(msg string, fields ...Field)

	// With returns a child logger with persistent fields.
	With(fields ...Field) Logger
}

// Field is a simple key/value pair for structured logging fields.
type Field struct {
	Key   string
	Value interface{}
}

// JSONLogger writes structured JSON lines to an io.Writer. It implements
// Logger and is the default logger for both the server and the CLI tools.
type JSONLogger struct {
	component string
	out       io.Writer
}

// NewStdoutLogger creates a JSONLogger writing to stdout. component is
// optional and is included on every line.
func NewStdoutLogger(component string) *JSONLogger {
	return &JSONLogger{component: component, out: os.Stdout}
}

// NewFileLogger creates a JSONLogger writing to a size-rotated file.
func NewFileLogger(component, path string, maxSizeMB, maxBackups int) *JSONLogger {
	return &JSONLogger{
		component: component,
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		},
	}
}

func (l *JSONLogger) log(level string, msg string, fields ...Field) {
	type outEntry struct {
		Level     string         `json:"level"`
		Msg       string         `json:"msg"`
		Component string         `json:"component,omitempty"`
		Time      string         `json:"time"`
		Fields    map[string]any `json:"fields,omitempty"`
	}
	m := make(map[string]any)
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	entry := outEntry{
		Level:     level,
		Msg:       msg,
		Component: l.component,
		Time:      time.Now().UTC().Format(time.RFC3339),
		Fields:    m,
	}
	enc, err := json.Marshal(entry)
	if err != nil {
		// Fallback simple formatting if JSON marshal fails
		fmt.Fprintf(l.out, "%s %s %v\n", level, msg, m)
		return
	}
	fmt.Fprintln(l.out, string(enc))
}

func (l *JSONLogger) Debug(msg string, fields ...Field) { l.log("debug", msg, fields...) }
func (l *JSONLogger) Info(msg string, fields ...Field)  { l.log("info", msg, fields...) }
func (l *JSONLogger) Warn(msg string, fields ...Field)  { l.log("warn", msg, fields...) }
func (l *JSONLogger) Error(msg string, fields ...Field) { l.log("error", msg, fields...) }

func (l *JSONLogger) With(fields ...Field) Logger {
	child := &JSONLogger{component: l.component, out: l.out}
	// If fields include a component key, prefer that as the component name
	for _, f := range fields {
		if f.Key == "component" {
			if str, ok := f.Value.(string); ok {
				child.component = str
			}
		}
	}
	return child
}
