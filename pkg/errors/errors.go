// Package errors provides the typed error surface shared by the transaction
// coordinators. Callers dispatch on error kind (connection failure, protocol
// misuse, missing branch, retryable conflict) instead of matching message
// strings.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Sentinel errors for the transaction subsystem. Compare with errors.Is;
// two *Error values match when their kinds are equal.
var (
	// ConnectionFailed covers pool exhaustion and network-level failures.
	// Never retried by the two-phase-commit path.
	ConnectionFailed *Error = NewWithKind("ConnectionFailed")

	// InvalidState means the caller drove a session through an operation
	// illegal for its current protocol state. A programming error.
	InvalidState *Error = NewWithKind("InvalidState")

	// NotFound means the referenced transaction branch does not exist,
	// either in the session registry or in the backend's recovery set.
	NotFound *Error = NewWithKind("NotFound")

	// Conflict is a retryable serialization conflict reported by a
	// serializable backend. Only the retrying manager acts on it.
	Conflict *Error = NewWithKind("Conflict")

	// RetryExhausted means the retry budget was spent on Conflict errors.
	RetryExhausted *Error = NewWithKind("RetryExhausted")

	// Internal is the fallback for backend errors matching no known class.
	Internal *Error = NewWithKind("Internal")
)

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`

	trace []byte
	cause error
}

var _ error = (*Error)(nil)

func New(message string) *Error {
	return &Error{Kind: "Unknown", Message: message}
}

func NewWithKind(kind string) *Error {
	return &Error{Kind: kind}
}

func Wrap(err error) *Error {
	return &Error{cause: err}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] ", e.Kind)
	if e.Message != "" {
		str += e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	if len(e.trace) > 0 {
		str = str + fmt.Sprintf("\n\nTrace: %s", string(e.trace))
	}
	return str
}

// Reason returns a copy of the error with kind set to given value
func (e *Error) Reason(kind string) *Error {
	err := *e
	err.Kind = kind
	return &err
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Wrap returns a copy of the error with the cause set
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// Trace sets the error stack trace
func (e *Error) Trace() *Error {
	stack := make([]byte, 2048)
	n := runtime.Stack(stack, false)
	e.trace = stack[:n]
	return e
}

// Is implements the needed interface for errors.Is.
// It checks error kinds for equality.
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	if e.cause != nil {
		return Is(e.cause, target)
	}
	return false
}
