package bridge

import "errors"

// notImplementedError signals an unknown command name (501).
type notImplementedError struct{ name string }

func (e notImplementedError) Error() string { return "not implemented: " + e.name }

// ErrNotImplemented returns the error reported for an unknown command.
func ErrNotImplemented(name string) error { return notImplementedError{name: name} }

// IsNotImplemented reports whether err indicates an unknown command.
func IsNotImplemented(err error) bool {
	var e notImplementedError
	return errors.As(err, &e)
}

// invalidArgsError signals malformed or missing command arguments (400).
type invalidArgsError struct {
	command string
	msg     string
}

func (e invalidArgsError) Error() string { return e.command + ": invalid arguments: " + e.msg }

// ErrInvalidArgs constructs an invalidArgsError.
func ErrInvalidArgs(command, msg string) error { return invalidArgsError{command: command, msg: msg} }

// IsInvalidArgs reports whether err indicates a caller argument error.
func IsInvalidArgs(err error) bool {
	var e invalidArgsError
	return errors.As(err, &e)
}

// tooBusyError signals queue overflow or device wait timeout for 429 mapping.
type tooBusyError struct{ what string }

func (e tooBusyError) Error() string { return "too busy: " + e.what }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy(what string) error { return tooBusyError{what: what} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var e tooBusyError
	return errors.As(err, &e)
}

// ErrClosed is returned for commands issued after teardown began.
var ErrClosed = errors.New("bridge closed")

// IsClosed reports whether err indicates the bridge was torn down.
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }

// dependencyUnavailableError signals a missing device or driver so the HTTP
// layer can return 503 instead of 500.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing device.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}
