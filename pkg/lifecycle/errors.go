package lifecycle

import (
	"errors"
	"fmt"
)

// Class partitions handler failures for reporting and metrics.
type Class string

const (
	// ClassValidation covers rejected input: bad names, illegal phases,
	// malformed credentials.
	ClassValidation Class = "validation"

	// ClassStep covers a failed step in the operation's sequence.
	ClassStep Class = "step"

	// ClassPersistence covers failures saving or loading the record.
	ClassPersistence Class = "persistence"

	// ClassConflict covers lock contention and refused operations.
	ClassConflict Class = "conflict"

	// ClassCleanup covers failures in best-effort teardown.
	ClassCleanup Class = "cleanup"
)

// Error is the classified failure every handler returns. The causal
// chain stays walkable via Unwrap; Hint carries the one-line remedy
// shown to the operator, Detail the expanded troubleshooting text.
type Error struct {
	Class       Class
	Operation   string
	Environment string
	Hint        string
	Detail      string
	Err         error
}

func (e *Error) Error() string {
	prefix := string(e.Class)
	if e.Operation != "" && e.Environment != "" {
		prefix = fmt.Sprintf("%s of environment %q", e.Operation, e.Environment)
	} else if e.Operation != "" {
		prefix = e.Operation
	}
	return fmt.Sprintf("%s failed: %v", prefix, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error wrapping cause.
func NewError(class Class, cause error) *Error {
	return &Error{Class: class, Err: cause}
}

// Errorf creates a classified error from a format string.
func Errorf(class Class, format string, args ...interface{}) *Error {
	return &Error{Class: class, Err: fmt.Errorf(format, args...)}
}

// WithOperation records the lifecycle command the error occurred in.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithEnvironment records the environment the error occurred against.
func (e *Error) WithEnvironment(name string) *Error {
	e.Environment = name
	return e
}

// WithHint attaches the one-line remedy shown to the operator.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithDetail attaches expanded troubleshooting text.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// ClassOf extracts the class from an error chain, or "" when the chain
// carries no classified error.
func ClassOf(err error) Class {
	var le *Error
	if errors.As(err, &le) {
		return le.Class
	}
	return ""
}

// HintOf extracts the operator hint from an error chain, if any.
func HintOf(err error) string {
	var le *Error
	if errors.As(err, &le) {
		return le.Hint
	}
	return ""
}
