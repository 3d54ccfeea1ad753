package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil.
// If err already carries an *Error, the code and category are kept.
// Context errors map to TIMEOUT and CANCELED; anything else becomes INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var coded *Error
	if errors.As(err, &coded) {
		wrapped := &Error{
			code:      coded.code,
			category:  coded.category,
			message:   message,
			cause:     err,
			metadata:  coded.Metadata(),
			retryable: coded.retryable,
			timestamp: coded.timestamp,
			taskID:    coded.taskID,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	opts = append(opts, WithCause(err))
	return New(code, message, opts...)
}

// AsCodedError extracts the first *Error from an error chain.
// Returns nil if there is none.
func AsCodedError(err error) *Error {
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return nil
}

// Is checks if the first *Error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code == code
	}
	return false
}

// IsRetryable checks if the error is retryable.
// Errors without an *Error in their chain are not retryable.
func IsRetryable(err error) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Retryable()
	}
	return false
}

// Code extracts the error code from an error, if available.
func Code(err error) ErrorCode {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.code
	}
	return ""
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
