package llm

import "errors"

var (
	// ErrContextFull is returned by Generate when the session ran out of positions.
	ErrContextFull = errors.New("context window full")
	// ErrIncompatibleSnapshot is returned when a snapshot does not match the loaded model.
	ErrIncompatibleSnapshot = errors.New("snapshot incompatible with loaded model")
)

// dependencyUnavailableError signals a runtime that was not built in or
// could not be found.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}
