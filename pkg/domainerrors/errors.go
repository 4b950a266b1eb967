// Package domainerrors provides coded errors for the service layer.
//
// Stores speak pkg/sentinel; services translate those facts plus their own
// validation into a *Error carrying a stable Code. Transports map codes to
// status lines without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers and transports.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"

	// Domain-specific codes. Kept distinct from the generic set so callers
	// can alert on security-significant failures.
	CodeInvalidFieldMask      Code = "invalid_field_mask"
	CodeTTLOutOfRange         Code = "ttl_out_of_range"
	CodeUnknownCredentialType Code = "unknown_credential_type"
	CodeTokenReuse            Code = "token_reuse_detected"
	CodeConfigIntegrity       Code = "config_integrity"
	CodeRateLimited           Code = "rate_limited"
)

// Error is a coded domain error. It may wrap an underlying cause.
type Error struct {
	code    Code
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the classification code.
func (e *Error) Code() Code { return e.code }

// New creates a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an underlying error with a code and message. A nil err
// yields nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{code: code, message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error is not coded.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}
