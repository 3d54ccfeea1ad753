package outstanding

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vinayprograms/drainkit/errors"
)

// DefaultName is recorded for tasks registered without a name.
const DefaultName = "anonymous"

// Common errors.
var (
	// ErrShuttingDown is returned by Register once Shutdown has been called.
	ErrShuttingDown = errors.New(errors.ErrCodeShuttingDown, "Shutting down")

	// ErrTimeout is the sentinel every *TimeoutError unwraps to.
	ErrTimeout = errors.New(errors.ErrCodeTimeout, "outstanding tasks did not complete")

	// ErrAlreadyShutdown is returned by a second call to Shutdown.
	ErrAlreadyShutdown = errors.New(errors.ErrCodeAlreadyShutdown, "shutdown already requested")

	// ErrInvalidConfig indicates invalid configuration or arguments.
	ErrInvalidConfig = errors.New(errors.ErrCodeInvalidInput, "invalid configuration")
)

// Token identifies one registered task. Tokens are unique among the tasks a
// registry currently holds.
type Token string

// Task is the record kept for an outstanding unit of work.
type Task struct {
	// Name is a descriptive label, DefaultName if none was given.
	Name string

	// RegisteredAt is when the task was registered.
	RegisteredAt time.Time
}

// Tasks maps tokens to the tasks they identify.
type Tasks map[Token]Task

// Tokens returns the tokens ordered by registration time, then token.
func (t Tasks) Tokens() []Token {
	tokens := make([]Token, 0, len(t))
	for token := range t {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		a, b := t[tokens[i]], t[tokens[j]]
		if !a.RegisteredAt.Equal(b.RegisteredAt) {
			return a.RegisteredAt.Before(b.RegisteredAt)
		}
		return tokens[i] < tokens[j]
	})
	return tokens
}

// Names returns the task names in Tokens order.
func (t Tasks) Names() []string {
	tokens := t.Tokens()
	names := make([]string, len(tokens))
	for i, token := range tokens {
		names[i] = t[token].Name
	}
	return names
}

func (t Tasks) clone() Tasks {
	out := make(Tasks, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Done is the completion handler of a unit of work. It must be invoked
// exactly once, with an optional error followed by any result values.
type Done func(err error, results ...any)

// Job is a caller-supplied unit of work. The registry never runs jobs on its
// own; Wrap and Run only bracket the caller's invocation with Register/Clear.
type Job func(done Done)

// ShutdownResult is delivered to the shutdown handler exactly once.
type ShutdownResult struct {
	// Err is nil when the registry drained, or a *TimeoutError.
	Err error

	// Outstanding holds the tasks still registered when the result was
	// produced. It is empty on a clean drain.
	Outstanding Tasks
}

// TimeoutError reports that the registry did not drain within the
// configured timeout. The message renders Timeout as a time.Duration, so a
// timeout configured as "1500" reads "within 1.5s".
type TimeoutError struct {
	// Timeout is the configured duration.
	Timeout time.Duration

	// Tasks is a snapshot of the tasks outstanding when the timer fired.
	Tasks Tasks
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Outstanding tasks did not complete within %s", e.Timeout)
}

// Unwrap returns ErrTimeout.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Observer is notified of registry lifecycle events. Calls are made without
// the registry lock held; observers must not block for long.
type Observer interface {
	TaskRegistered(token Token, task Task)
	TaskCleared(token Token, task Task, elapsed time.Duration)
	ShutdownStarted(outstanding int)
	ShutdownCompleted(result ShutdownResult)
}

// Executor runs deferred work, such as the idle check scheduled by Clear.
type Executor func(fn func())

// Config configures a Registry.
type Config struct {
	// Timeout bounds how long Shutdown waits for outstanding tasks.
	// Zero waits indefinitely.
	Timeout time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return errors.Wrap(ErrInvalidConfig, fmt.Sprintf("negative timeout %s", c.Timeout))
	}
	return nil
}

// maxTimeoutMillis is the largest millisecond count a time.Duration holds.
const maxTimeoutMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// ParseTimeout parses a timeout written as a Go duration ("1s", "1m30s") or
// as a bare number of milliseconds ("1500"). An empty string means no timeout.
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			return 0, errors.Wrap(ErrInvalidConfig, fmt.Sprintf("timeout %q is not a finite number", s))
		}
		if ms < 0 {
			return 0, errors.Wrap(ErrInvalidConfig, fmt.Sprintf("negative timeout %q", s))
		}
		if ms > maxTimeoutMillis {
			return 0, errors.Wrap(ErrInvalidConfig, fmt.Sprintf("timeout %q out of range", s))
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrCodeInvalidInput, fmt.Sprintf("parsing timeout %q", s))
	}
	if d < 0 {
		return 0, errors.Wrap(ErrInvalidConfig, fmt.Sprintf("negative timeout %q", s))
	}
	return d, nil
}
