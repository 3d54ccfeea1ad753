package outstanding

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/drainkit/errors"
)

// maxTokenAttempts bounds retries when a custom generator repeats itself.
const maxTokenAttempts = 16

// Registry tracks outstanding tasks and coordinates shutdown.
type Registry struct {
	config    Config
	idGen     func() string
	now       func() time.Time
	exec      Executor
	observers []Observer

	mu     sync.Mutex
	tasks  Tasks
	closed bool
	notify func(ShutdownResult)
	timer  *time.Timer

	fired  atomic.Bool
	done   chan struct{}
	result *ShutdownResult
}

// New creates an empty, open registry.
func New(config Config, opts ...Option) *Registry {
	r := &Registry{
		config: config,
		idGen:  generateID,
		now:    time.Now,
		exec:   goExecutor,
		tasks:  make(Tasks),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func generateID() string {
	return uuid.New().String()
}

func goExecutor(fn func()) {
	go fn()
}

// Register records a new task and returns its token.
// Once Shutdown has been called it returns ErrShuttingDown and no token.
func (r *Registry) Register(name string) (Token, error) {
	if name == "" {
		name = DefaultName
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrShuttingDown
	}
	token, err := r.nextToken()
	if err != nil {
		r.mu.Unlock()
		return "", err
	}
	task := Task{Name: name, RegisteredAt: r.now()}
	r.tasks[token] = task
	r.mu.Unlock()

	for _, o := range r.observers {
		o.TaskRegistered(token, task)
	}
	return token, nil
}

// RegisterFunc is the callback form of Register.
func (r *Registry) RegisterFunc(name string, cb func(err error, token Token)) {
	token, err := r.Register(name)
	cb(err, token)
}

// nextToken must be called with r.mu held.
func (r *Registry) nextToken() (Token, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		token := Token(r.idGen())
		if _, exists := r.tasks[token]; !exists && token != "" {
			return token, nil
		}
	}
	return "", errors.Internal("token generator keeps returning tokens already in use")
}

// Clear removes the task identified by token. Unknown tokens are ignored.
// While shutting down, the idle check is handed to the executor instead of
// running inline, so Clear may be called from inside completion handlers.
func (r *Registry) Clear(token Token) {
	r.mu.Lock()
	task, ok := r.tasks[token]
	delete(r.tasks, token)
	closing := r.closed
	r.mu.Unlock()

	if ok {
		elapsed := r.now().Sub(task.RegisteredAt)
		for _, o := range r.observers {
			o.TaskCleared(token, task, elapsed)
		}
	}
	if closing && !r.fired.Load() {
		r.exec(r.checkIdle)
	}
}

// ClearFunc is the callback form of Clear. The callback always gets nil.
func (r *Registry) ClearFunc(token Token, cb func(err error)) {
	r.Clear(token)
	cb(nil)
}

// Wrap returns a Job that registers name, runs fn and clears the task when
// fn completes, forwarding fn's error and results unchanged. If the
// registry is shutting down, the returned Job reports ErrShuttingDown and
// fn is never invoked.
func (r *Registry) Wrap(name string, fn Job) Job {
	return func(done Done) {
		r.Run(name, fn, done)
	}
}

// WrapJob is Wrap with the name derived from fn.
func (r *Registry) WrapJob(fn Job) Job {
	return r.Wrap(JobName(fn), fn)
}

// Run is Wrap(name, fn)(done).
func (r *Registry) Run(name string, fn Job, done Done) {
	if done == nil {
		done = func(error, ...any) {}
	}
	token, err := r.Register(name)
	if err != nil {
		done(err)
		return
	}
	var once sync.Once
	fn(func(err error, results ...any) {
		once.Do(func() {
			r.Clear(token)
			done(err, results...)
		})
	})
}

// RunJob is Run with the name derived from fn.
func (r *Registry) RunJob(fn Job, done Done) {
	r.Run(JobName(fn), fn, done)
}

// List returns a copy of the outstanding tasks.
func (r *Registry) List() Tasks {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks.clone()
}

// Len returns the number of outstanding tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Closed reports whether Shutdown has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Shutdown stops accepting new tasks and arranges for cb to be called
// exactly once: with a nil error as soon as no tasks remain, or with a
// *TimeoutError if the configured timeout elapses first. When the registry
// is already idle, cb runs before Shutdown returns.
//
// Shutdown may be called once; later calls return ErrAlreadyShutdown.
func (r *Registry) Shutdown(cb func(ShutdownResult)) error {
	if cb == nil {
		return errors.Wrap(ErrInvalidConfig, "nil shutdown handler")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrAlreadyShutdown
	}
	r.closed = true
	r.notify = cb
	pending := len(r.tasks)
	if r.config.Timeout > 0 {
		r.timer = time.AfterFunc(r.config.Timeout, r.expire)
	}
	r.mu.Unlock()

	for _, o := range r.observers {
		o.ShutdownStarted(pending)
	}
	r.checkIdle()
	return nil
}

// ShutdownContext calls Shutdown and waits for the result or for ctx.
// If ctx ends first the registry stays closed and the current outstanding
// tasks are returned with the context error.
func (r *Registry) ShutdownContext(ctx context.Context) (Tasks, error) {
	results := make(chan ShutdownResult, 1)
	if err := r.Shutdown(func(res ShutdownResult) {
		results <- res
	}); err != nil {
		return nil, err
	}

	select {
	case res := <-results:
		return res.Outstanding, res.Err
	case <-ctx.Done():
		return r.List(), errors.Wrap(ctx.Err(), "waiting for outstanding tasks")
	}
}

// Done returns a channel that is closed once the shutdown result is recorded
// and observers have seen it. It closes before the shutdown handler is
// called, so the handler may wait on it or read Result.
func (r *Registry) Done() <-chan struct{} {
	return r.done
}

// Result returns the shutdown result, or nil before Done is closed.
func (r *Registry) Result() *ShutdownResult {
	select {
	case <-r.done:
		return r.result
	default:
		return nil
	}
}

func (r *Registry) checkIdle() {
	r.mu.Lock()
	idle := len(r.tasks) == 0
	r.mu.Unlock()

	if idle {
		r.complete(nil, Tasks{})
	}
}

func (r *Registry) expire() {
	r.mu.Lock()
	snapshot := r.tasks.clone()
	r.mu.Unlock()

	// A clear that emptied the registry before the timer fired wins even if
	// its deferred check has not run yet.
	if len(snapshot) == 0 {
		r.complete(nil, snapshot)
		return
	}
	r.complete(&TimeoutError{Timeout: r.config.Timeout, Tasks: snapshot}, snapshot.clone())
}

// complete delivers the shutdown result. Only the first caller wins.
func (r *Registry) complete(err error, outstanding Tasks) {
	if !r.fired.CompareAndSwap(false, true) {
		return
	}

	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	notify := r.notify
	result := ShutdownResult{Err: err, Outstanding: outstanding}
	r.result = &result
	r.mu.Unlock()

	for _, o := range r.observers {
		o.ShutdownCompleted(result)
	}
	close(r.done)
	notify(result)
}
