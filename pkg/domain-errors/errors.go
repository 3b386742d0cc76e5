// Package domainerrors provides coded errors for the docket core.
//
// Services attach a Code so transport layers can map failures to HTTP status
// and API clients can distinguish validation problems, missing records,
// tenant-isolation denials, locked workspaces and write conflicts without
// parsing message text. Stores return pkg/platform/sentinel errors; services
// translate them into these.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation marks invalid input on a domain operation.
	CodeValidation Code = "validation_error"
	// CodeInvalidInput marks malformed values rejected at a trust boundary.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks a malformed request body or parameter.
	CodeBadRequest Code = "bad_request"
	// CodeInvariantViolation marks a domain invariant breach in a constructor.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeNotFound marks a referenced entity that does not exist.
	CodeNotFound Code = "not_found"
	// CodeUnauthorized marks missing or invalid credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks insufficient role, or a query naming a tenant other
	// than the caller's. Id lookups answer CodeNotFound for foreign records so
	// their existence is never revealed.
	CodeForbidden Code = "forbidden"
	// CodeLocked marks a mutation attempted on a locked workspace.
	CodeLocked Code = "workspace_locked"
	// CodeConflict marks a concurrent-write race (chain head moved, duplicate
	// identity insert).
	CodeConflict Code = "conflict"
	// CodeIntegrity marks a checksum or chain mismatch found by verification.
	// Verification reports carry this; mutating operations never raise it.
	CodeIntegrity Code = "integrity_error"
	// CodeInternal marks an unexpected infrastructure failure.
	CodeInternal Code = "internal_error"
)

// DomainError is an error with a classification code.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.cause }

// New creates a coded domain error.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Newf creates a coded domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message, preserving the cause for
// errors.Is / errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &DomainError{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries none.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the transport layer should use.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidInput, CodeBadRequest, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeLocked:
		return http.StatusLocked
	case CodeConflict:
		return http.StatusConflict
	case CodeIntegrity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
