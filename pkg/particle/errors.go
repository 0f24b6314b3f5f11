package particle

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork indicates a connect or read failure on the wire.
	ErrNetwork = errors.New("network error")

	// ErrParse indicates a malformed frame or event record.
	ErrParse = errors.New("parse error")

	// ErrNameConflict indicates a listener is already registered under a name.
	ErrNameConflict = errors.New("listener name conflict")

	// ErrInvalidState indicates an operation on a disposed, running or
	// unauthenticated client.
	ErrInvalidState = errors.New("invalid state")

	// ErrUpstream indicates a non-success response from the cloud API.
	ErrUpstream = errors.New("upstream error")

	// ErrInvalidInput indicates a caller supplied an empty or invalid argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrListenerNotFound indicates no listener is registered under a name.
	ErrListenerNotFound = errors.New("listener not found")
)

// UpstreamError is returned when the cloud API answers with an error status
// or an error body.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return "upstream error: " + e.Message
	}

	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

// Is reports UpstreamError as ErrUpstream.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// ParseError describes a field that could not be decoded into an Event.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse error: field %q missing", e.Field)
	}

	return fmt.Sprintf("parse error: field %q: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports ParseError as ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
