package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how errors should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: a drain that did not finish in time, a bus that is reconnecting.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: invalid configuration, a second shutdown request.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates the resource is no longer accepting work.
	// Examples: registering a task on a registry that is shutting down.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs, or system failures.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

// Error codes emitted by drainkit packages.
const (
	// Transient errors
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // Operation timed out
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // Backend temporarily unavailable

	// Permanent errors
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"    // Malformed or invalid input
	ErrCodeAlreadyShutdown ErrorCode = "ALREADY_SHUTDOWN" // Shutdown requested twice
	ErrCodeCanceled        ErrorCode = "CANCELED"         // Operation was canceled
	ErrCodeTaskFailed      ErrorCode = "TASK_FAILED"      // A unit of work reported failure

	// Resource errors
	ErrCodeShuttingDown ErrorCode = "SHUTTING_DOWN" // No new work accepted

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL" // Unexpected internal error
	ErrCodePanic    ErrorCode = "PANIC"    // Recovered from panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeUnavailable:
		return CategoryTransient

	case ErrCodeInvalidInput, ErrCodeAlreadyShutdown, ErrCodeCanceled, ErrCodeTaskFailed:
		return CategoryPermanent

	case ErrCodeShuttingDown:
		return CategoryResource

	default:
		return CategoryInternal
	}
}
