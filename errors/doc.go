// Package errors provides the structured error taxonomy shared by drainkit
// packages. Every error a drainkit package returns to its caller is an
// *Error carrying a code, a category and optional metadata, so that callers
// can branch on the kind of failure without string matching.
//
// # Error Categories
//
//   - Transient: the operation may succeed later (a drain timed out)
//   - Permanent: retrying will not help (invalid configuration)
//   - Resource: the component no longer accepts work (shutting down)
//   - Internal: bugs and recovered panics
//
// # Usage
//
// Sentinels are plain *Error values, so both styles of checking work:
//
//	if errors.Is(err, errors.ErrCodeShuttingDown) { ... }  // by code
//	if stderrors.Is(err, outstanding.ErrShuttingDown) { ... } // by identity
//
// Wrap an existing error with context:
//
//	wrapped := errors.Wrap(err, "draining registry")
//
// # JSON Serialization
//
// Errors marshal to JSON so they can travel inside bus events:
//
//	data, err := json.Marshal(drainErr)
package errors
