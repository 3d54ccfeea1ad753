package shutdown

import (
	"context"
	"time"

	"github.com/vinayprograms/drainkit/errors"
)

// Common errors.
var (
	// ErrAlreadyShutdown indicates shutdown was already initiated and is
	// still in progress.
	ErrAlreadyShutdown = errors.New(errors.ErrCodeAlreadyShutdown, "shutdown already initiated")

	// ErrTimeout indicates shutdown did not complete within the timeout.
	ErrTimeout = errors.New(errors.ErrCodeTimeout, "shutdown timeout exceeded")

	// ErrHandlerFailed indicates one or more handlers failed during shutdown.
	ErrHandlerFailed = errors.New(errors.ErrCodeTaskFailed, "one or more handlers failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New(errors.ErrCodeInvalidInput, "invalid configuration")
)

// Phases used by the handlers this module provides. Lower phases run first.
const (
	// PhaseDrain stops new work and waits for outstanding tasks.
	PhaseDrain = 10

	// PhaseFlush flushes exporters and publishers once work has drained.
	PhaseFlush = 50

	// PhaseClose releases connections.
	PhaseClose = 90
)

// ShutdownHandler is implemented by components that need graceful shutdown.
type ShutdownHandler interface {
	// OnShutdown is called when shutdown is initiated. The context is
	// cancelled when the shutdown timeout is reached.
	OnShutdown(ctx context.Context) error
}

// ShutdownFunc is a convenience type for simple shutdown functions.
type ShutdownFunc func(ctx context.Context) error

// OnShutdown implements ShutdownHandler.
func (f ShutdownFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// ShutdownCoordinator manages graceful shutdown for multiple components.
type ShutdownCoordinator interface {
	// Register adds a handler in the default phase.
	Register(name string, handler ShutdownHandler)

	// RegisterWithPhase adds a handler with a specific phase.
	// Lower phase numbers are shut down first.
	// Handlers in the same phase are shut down concurrently.
	RegisterWithPhase(name string, handler ShutdownHandler, phase int)

	// Shutdown runs all registered handlers phase by phase.
	Shutdown(ctx context.Context) error

	// ShutdownWithTimeout is Shutdown with a context bounded by timeout.
	ShutdownWithTimeout(timeout time.Duration) error

	// HandleSignals starts shutdown on SIGTERM or SIGINT.
	HandleSignals()

	// Done returns a channel that is closed when shutdown is complete.
	Done() <-chan struct{}

	// Err returns any error that occurred during shutdown.
	// Only valid after Done() is closed.
	Err() error
}

// HandlerResult contains the result of a single handler's shutdown.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// ShutdownResult contains the complete shutdown result.
type ShutdownResult struct {
	// TotalDuration of the entire shutdown process.
	TotalDuration time.Duration

	// Results for each handler that ran, in phase order.
	Results []HandlerResult

	// Err is the overall error (nil if all handlers succeeded).
	Err error
}

// Failed returns true if any handler failed.
func (r *ShutdownResult) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *ShutdownResult) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the shutdown coordinator.
type Config struct {
	// DefaultTimeout bounds shutdowns started by ShutdownWithTimeout(0)
	// and by signals.
	// Default: 30 seconds
	DefaultTimeout time.Duration

	// DefaultPhase is assigned to handlers registered without a phase.
	// Default: 100
	DefaultPhase int

	// ContinueOnError runs later phases even if a handler fails.
	ContinueOnError bool

	// OnProgress is called when each handler completes.
	OnProgress func(result HandlerResult)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultTimeout < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative default timeout")
	}
	if c.DefaultPhase < 0 {
		return errors.Wrap(ErrInvalidConfig, "negative default phase")
	}
	return nil
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout:  30 * time.Second,
		DefaultPhase:    100,
		ContinueOnError: true,
	}
}

// registration holds a registered handler with its metadata.
type registration struct {
	name    string
	handler ShutdownHandler
	phase   int
}
