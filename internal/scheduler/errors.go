package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned by Queue operations after Close.
	ErrQueueClosed = errors.New("queue closed")
	// ErrSinkClosed is returned by Sink.Send once the consumer went away or
	// the stream was finished.
	ErrSinkClosed = errors.New("sink closed")
	// ErrSchedulerClosed is returned by Submit after Close, and delivered to
	// requests still queued when the scheduler stops.
	ErrSchedulerClosed = errors.New("scheduler closed")
	// ErrNoSink rejects requests without an output sink.
	ErrNoSink = errors.New("request has no output sink")
)

// GenerationError is delivered as the terminal result of a request whose
// generation failed. Tokens sent before the failure were already delivered.
type GenerationError struct {
	RequestID string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for request %s: %v", e.RequestID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err carries a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}

// StartupError is fatal: the model or the restore snapshot could not be
// loaded and the scheduler never serves.
type StartupError struct {
	Stage string
	Err   error
}

func (e *StartupError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StartupError) Unwrap() error { return e.Err }

// IsStartupError reports whether err carries a StartupError.
func IsStartupError(err error) bool {
	var se *StartupError
	return errors.As(err, &se)
}
