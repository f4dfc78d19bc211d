// Package domainerrors defines the coded error type returned by services.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate them
// into a *Error carrying one of the codes below. Transport layers map codes to
// status codes (pkg/platform/httputil) and never inspect messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation marks malformed or missing input.
	CodeValidation Code = "validation_error"
	// CodeBadRequest marks an undecodable request body.
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput marks a malformed identifier.
	CodeInvalidInput Code = "invalid_input"
	// CodeConflict marks an affiliation rule conflict surfaced at the transport edge.
	CodeConflict Code = "conflict"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeInvalidState marks an entity in the wrong state for the requested operation.
	CodeInvalidState Code = "invalid_state"
	// CodeDuplicateVehicle marks a registration already attached to another client.
	CodeDuplicateVehicle Code = "duplicate_vehicle"
	// CodeMissingActor marks a mutating request without an acting user.
	CodeMissingActor Code = "missing_actor"
	// CodeUnauthorized marks missing or bad credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks an authenticated caller without the required role.
	CodeForbidden Code = "forbidden"
	// CodeRateLimited marks a throttled caller.
	CodeRateLimited Code = "rate_limited"
	// CodeTimeout marks an operation that ran out of time.
	CodeTimeout Code = "timeout"
	// CodeInternal marks a storage or infrastructure failure.
	CodeInternal Code = "internal_error"
)

// Error is a domain error with a stable code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost domain error in the chain,
// or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the message of the outermost domain error in the chain.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// HasCode reports whether err is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// Is is an alias of HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
