// Package logging provides leveled console output for drainkit components.
// Registry events reach it through Observer; the registry itself never logs.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/drainkit/errors"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel parses a level name such as "info" or "WARN".
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := levelPriority[level]; !ok {
		return "", errors.InvalidInput(fmt.Sprintf("unknown log level %q", s))
	}
	return level, nil
}

// Logger writes lines of the form
// LEVEL TIMESTAMP [component] message key=value ...
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	now       func() time.Time
}

// New creates a Logger writing INFO and above to stdout.
func New() *Logger {
	return &Logger{
		mu:       &sync.Mutex{},
		output:   os.Stdout,
		minLevel: LevelInfo,
		now:      time.Now,
	}
}

// WithComponent returns a new logger with the given component name.
// The new logger shares the output of its parent.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		now:       l.now,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats fields as key=value pairs in key order.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " " + strings.Join(parts, " ")
}

func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := l.now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Registry event methods ---

// TaskRegistered logs a new outstanding task.
func (l *Logger) TaskRegistered(token, name string) {
	l.Debug("task_registered", map[string]interface{}{
		"token": token,
		"task":  name,
	})
}

// TaskCleared logs the completion of an outstanding task.
func (l *Logger) TaskCleared(token, name string, duration time.Duration) {
	l.Debug("task_cleared", map[string]interface{}{
		"token":    token,
		"task":     name,
		"duration": duration.String(),
	})
}

// ShutdownStarted logs the start of a registry drain.
func (l *Logger) ShutdownStarted(outstanding int) {
	l.Info("shutdown_started", map[string]interface{}{
		"outstanding": outstanding,
	})
}

// ShutdownCompleted logs the end of a registry drain. When err is set the
// names of the tasks still outstanding are included.
func (l *Logger) ShutdownCompleted(err error, remaining []string) {
	if err == nil {
		l.Info("shutdown_complete")
		return
	}
	l.Warn("shutdown_timeout", map[string]interface{}{
		"error":       err.Error(),
		"outstanding": len(remaining),
		"tasks":       strings.Join(remaining, ","),
	})
}

// HandlerCompleted logs the result of one process shutdown handler.
func (l *Logger) HandlerCompleted(name string, phase int, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"handler":  name,
		"phase":    phase,
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		if code := errors.Code(err); code != "" {
			fields["code"] = string(code)
		}
		fields["retryable"] = errors.IsRetryable(err)
		l.Error("handler_failed", fields)
		return
	}
	l.Debug("handler_complete", fields)
}
