package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vinayprograms/drainkit/errors"
	"github.com/vinayprograms/drainkit/logging"
)

// Coordinator implements ShutdownCoordinator.
type Coordinator struct {
	config Config

	mu            sync.Mutex
	handlers      []registration
	started       atomic.Bool
	shutdownErr   error
	done          chan struct{}
	result        *ShutdownResult
	signalChan    chan os.Signal
	signal        os.Signal
	shutdownStart time.Time
}

var _ ShutdownCoordinator = (*Coordinator)(nil)

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if config.DefaultPhase == 0 {
		config.DefaultPhase = DefaultConfig().DefaultPhase
	}

	return &Coordinator{
		config:     config,
		handlers:   make([]registration, 0),
		done:       make(chan struct{}),
		signalChan: make(chan os.Signal, 1),
	}
}

// LogProgress returns an OnProgress callback that logs each handler result.
func LogProgress(l *logging.Logger) func(HandlerResult) {
	return func(hr HandlerResult) {
		l.HandlerCompleted(hr.Name, hr.Phase, hr.Duration, hr.Err)
	}
}

// Register adds a handler to be called during shutdown.
func (c *Coordinator) Register(name string, handler ShutdownHandler) {
	c.RegisterWithPhase(name, handler, c.config.DefaultPhase)
}

// RegisterWithPhase adds a handler with a specific phase.
func (c *Coordinator) RegisterWithPhase(name string, handler ShutdownHandler, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = append(c.handlers, registration{
		name:    name,
		handler: handler,
		phase:   phase,
	})
}

// RegisterFunc registers fn in the default phase.
func (c *Coordinator) RegisterFunc(name string, fn func(ctx context.Context) error) {
	c.Register(name, ShutdownFunc(fn))
}

// RegisterFuncWithPhase registers fn in the given phase.
func (c *Coordinator) RegisterFuncWithPhase(name string, fn func(ctx context.Context) error, phase int) {
	c.RegisterWithPhase(name, ShutdownFunc(fn), phase)
}

// Shutdown runs every registered handler, phase by phase. The first call
// does the work. Calls made while it is running return ErrAlreadyShutdown;
// calls made after it finished return its error.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		select {
		case <-c.done:
			return c.shutdownErr
		default:
			return ErrAlreadyShutdown
		}
	}

	c.shutdownStart = time.Now()
	result := c.doShutdown(ctx)

	c.mu.Lock()
	c.result = result
	c.shutdownErr = result.Err
	c.mu.Unlock()
	close(c.done)

	return result.Err
}

// ShutdownWithTimeout initiates shutdown with a timeout.
// A zero timeout uses Config.DefaultTimeout.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout == 0 {
		timeout = c.config.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals starts shutdown with the default timeout on the first
// SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signalChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-c.signalChan
		signal.Stop(c.signalChan)
		c.mu.Lock()
		c.signal = sig
		c.mu.Unlock()
		_ = c.ShutdownWithTimeout(c.config.DefaultTimeout)
	}()
}

// Signal returns the signal that started shutdown, if any.
func (c *Coordinator) Signal() os.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal
}

// Done returns a channel that is closed when shutdown is complete.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns any error that occurred during shutdown.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.shutdownErr
	default:
		return nil
	}
}

// Result returns the detailed shutdown result.
// Only valid after Done() is closed.
func (c *Coordinator) Result() *ShutdownResult {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) doShutdown(ctx context.Context) *ShutdownResult {
	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	// Stable so registration order holds within a phase.
	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	result := &ShutdownResult{
		Results: make([]HandlerResult, 0, len(handlers)),
	}
	finish := func(err error) *ShutdownResult {
		result.Err = err
		result.TotalDuration = time.Since(c.shutdownStart)
		return result
	}

	var overallErr error
	for _, group := range groupByPhase(handlers) {
		if ctx.Err() != nil {
			return finish(errors.Wrap(ErrTimeout, fmt.Sprintf("phase %d not started", group[0].phase)))
		}

		phaseResults := c.executePhase(ctx, group)
		result.Results = append(result.Results, phaseResults...)

		for _, hr := range phaseResults {
			if hr.Err == nil {
				continue
			}
			overallErr = ErrHandlerFailed
			if !c.config.ContinueOnError {
				return finish(overallErr)
			}
		}
	}

	return finish(overallErr)
}

// executePhase runs all handlers in a phase concurrently. A panicking
// handler is reported as failed.
func (c *Coordinator) executePhase(ctx context.Context, handlers []registration) []HandlerResult {
	results := make([]HandlerResult, len(handlers))
	var wg sync.WaitGroup

	for i, reg := range handlers {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()

			start := time.Now()
			err := runHandler(ctx, r.handler)
			hr := HandlerResult{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(start),
				Err:      err,
			}
			results[idx] = hr

			if c.config.OnProgress != nil {
				c.config.OnProgress(hr)
			}
		}(i, reg)
	}

	wg.Wait()
	return results
}

func runHandler(ctx context.Context, h ShutdownHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	return h.OnShutdown(ctx)
}

// groupByPhase groups handlers sorted by phase.
func groupByPhase(handlers []registration) [][]registration {
	if len(handlers) == 0 {
		return nil
	}

	var groups [][]registration
	var currentGroup []registration
	currentPhase := handlers[0].phase

	for _, h := range handlers {
		if h.phase != currentPhase {
			groups = append(groups, currentGroup)
			currentGroup = nil
			currentPhase = h.phase
		}
		currentGroup = append(currentGroup, h)
	}

	if len(currentGroup) > 0 {
		groups = append(groups, currentGroup)
	}

	return groups
}

// Trigger starts shutdown as if SIGTERM had been received. HandleSignals
// must have been called.
func (c *Coordinator) Trigger() {
	select {
	case c.signalChan <- syscall.SIGTERM:
	default:
	}
}

// Reset clears handlers and shutdown state so the coordinator can be reused.
// It must not be called during a shutdown.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = make([]registration, 0)
	c.started.Store(false)
	c.shutdownErr = nil
	c.done = make(chan struct{})
	c.result = nil
	c.signal = nil
}
