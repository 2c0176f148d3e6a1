// Package domain defines core types, interfaces, and errors for the sync manager.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// QueueFullError indicates the job queue has no free slot. The submission
// was valid; the caller should retry later.
type QueueFullError struct {
	Message string
}

func (e *QueueFullError) Error() string { return e.Message }

// SourceUnavailableError indicates the source database could not be reached
// or queried. Fatal to the pipeline invocation that hit it.
type SourceUnavailableError struct {
	Message string
	Err     error
}

func (e *SourceUnavailableError) Error() string { return e.Message }

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// LoadError indicates a batch write against the target database failed.
// Transient load errors are retried with backoff; non-transient ones
// (constraint violations and the like) fail the pipeline immediately.
type LoadError struct {
	Message   string
	Transient bool
	Err       error
}

func (e *LoadError) Error() string { return e.Message }

func (e *LoadError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrQueueFull creates a QueueFullError with a formatted message.
func ErrQueueFull(format string, args ...interface{}) *QueueFullError {
	return &QueueFullError{Message: fmt.Sprintf(format, args...)}
}

// ErrSourceUnavailable wraps err as a SourceUnavailableError.
func ErrSourceUnavailable(err error, format string, args ...interface{}) *SourceUnavailableError {
	return &SourceUnavailableError{Message: fmt.Sprintf(format, args...) + ": " + err.Error(), Err: err}
}

// ErrLoad wraps err as a LoadError with the given transience classification.
func ErrLoad(err error, transient bool, format string, args ...interface{}) *LoadError {
	return &LoadError{Message: fmt.Sprintf(format, args...) + ": " + err.Error(), Transient: transient, Err: err}
}
