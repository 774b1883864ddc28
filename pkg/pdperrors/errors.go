// Package pdperrors defines the typed error vocabulary shared across the PDP.
//
// Compiler-pipeline failures (parse, translation, unsupported constructs,
// missing caller configuration) are surfaced to the caller as typed failures.
// Engine failures carry a distinct code per failure mode (timeout, connection,
// bad status, malformed body) so the enforcer can absorb them into fallbacks
// while observability still sees what went wrong.
package pdperrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and logging.
type Code string

const (
	// CodeBadRequest covers malformed or invalid client input.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized covers missing or invalid bearer tokens.
	CodeUnauthorized Code = "unauthorized"
	// CodeUnsupportedAPIVersion marks requests in the retired v1 shape.
	CodeUnsupportedAPIVersion Code = "unsupported_api_version"

	// CodeParse marks a malformed partial-evaluation response.
	CodeParse Code = "parse_error"
	// CodeTranslation marks an AST shape that violates the IR invariants.
	CodeTranslation Code = "translation_error"
	// CodeNotImplemented marks an IR construct the SQL lowering does not support.
	CodeNotImplemented Code = "not_implemented"
	// CodeMissingMapping marks a residual variable absent from the column mapping.
	CodeMissingMapping Code = "missing_mapping"
	// CodeMissingJoin marks referenced tables with no declared join predicate.
	CodeMissingJoin Code = "missing_join"
	// CodeUnsupportedOperator marks a comparison operator with no relational
	// counterpart.
	CodeUnsupportedOperator Code = "unsupported_operator"

	// CodeEngineTimeout marks a policy engine call that exceeded its deadline.
	CodeEngineTimeout Code = "engine_timeout"
	// CodeEngineConnection marks a failure to reach the policy engine at all.
	CodeEngineConnection Code = "engine_connection"
	// CodeEngineStatus marks a non-2xx response from the policy engine.
	CodeEngineStatus Code = "engine_bad_status"
	// CodeEngineResponse marks a 2xx engine response whose body cannot be decoded.
	CodeEngineResponse Code = "engine_bad_response"

	// CodeInternal is the catch-all for unexpected failures.
	CodeInternal Code = "internal_error"
)

// Error is the concrete error type carried through the PDP. It wraps an
// optional cause so errors.Is/As keep working through the chain.
type Error struct {
	Code    Code
	Message string
	cause   error
}

// New constructs an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// CodeOf extracts the Code from err, walking the wrap chain.
// Unknown errors report CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsEngineFailure reports whether err is one of the engine failure modes the
// enforcer resolves via a fallback payload.
func IsEngineFailure(err error) bool {
	switch CodeOf(err) {
	case CodeEngineTimeout, CodeEngineConnection, CodeEngineStatus, CodeEngineResponse:
		return true
	}
	return false
}
