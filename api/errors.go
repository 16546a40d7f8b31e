// File: api/errors.go
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for the dasynq event
// loop core.

package api

import (
	"fmt"
	"strings"
)

// Common errors used across the library.
var (
	ErrWatcherAlreadyRegistered = fmt.Errorf("watcher is already registered with a loop")
	ErrBackendUnavailable       = fmt.Errorf("no event backend available for this platform")
	ErrUnsupportedFDType        = fmt.Errorf("file descriptor type is not supported by this backend")
	ErrResourceExhausted        = fmt.Errorf("resource exhausted")
	ErrInvalidArgument          = fmt.Errorf("invalid argument")
	ErrLoopStopped              = fmt.Errorf("event loop is stopped")
)

// ErrorCode represents specific error conditions raised from the loop or
// its backend.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeUnsupportedFDType
	ErrCodeBackendUnavailable
	ErrCodeInternal
)

// contextEntry is one key/value pair attached to an Error via
// WithContext, kept in insertion order rather than a map so Error()
// renders deterministically.
type contextEntry struct {
	key   string
	value any
}

// Error represents a structured error with a code and context, raised
// from register/add-watch operations (see spec §7 error taxonomy:
// OS-resource exhaustion, allocation failure, unsupported fd type).
type Error struct {
	Code    ErrorCode
	Message string

	context []contextEntry
}

// Error implements the error interface. Context, if any, is rendered in
// the order WithContext calls added it.
func (e *Error) Error() string {
	if len(e.context) == 0 {
		return e.Message
	}
	var b strings.Builder
	b.WriteString(e.Message)
	b.WriteString(" (")
	for i, entry := range e.context {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", entry.key, entry.value)
	}
	b.WriteByte(')')
	return b.String()
}

// NewError creates a new structured error with no context attached.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithContext appends one key/value pair to the error's context and
// returns e for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	e.context = append(e.context, contextEntry{key: key, value: value})
	return e
}
