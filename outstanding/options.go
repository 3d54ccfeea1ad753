package outstanding

import "time"

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator sets a custom token generator.
func WithIDGenerator(gen func() string) Option {
	return func(r *Registry) {
		r.idGen = gen
	}
}

// WithObserver adds an observer. It may be given more than once.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithExecutor sets the executor used for deferred idle checks.
// The default runs each check on a new goroutine.
func WithExecutor(exec Executor) Option {
	return func(r *Registry) {
		r.exec = exec
	}
}

// WithClock sets the time source used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}
