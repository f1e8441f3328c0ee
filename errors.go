package fireauth

import (
	"errors"
	"fmt"
)

// ErrorCode represents verifier error categories.
type ErrorCode string

const (
	ErrCodeInvalidTokenFormat  ErrorCode = "invalid_token_format"
	ErrCodeInvalidCookieFormat ErrorCode = "invalid_cookie_format"
	ErrCodeInvalidToken        ErrorCode = "invalid_token"
	ErrCodeInvalidCookie       ErrorCode = "invalid_cookie"
	ErrCodeInvalidAlgorithm    ErrorCode = "invalid_algorithm"
	ErrCodeMissingKeyID        ErrorCode = "missing_key_id"
	ErrCodeCertificateNotFound ErrorCode = "certificate_not_found"
	ErrCodeNoKeysAvailable     ErrorCode = "no_keys_available"
	ErrCodeKeysUnavailable     ErrorCode = "keys_unavailable"
	ErrCodeInvalidSignature    ErrorCode = "invalid_signature"
	ErrCodeMissingProjectID    ErrorCode = "missing_project_id"
	ErrCodeInvalidAudience     ErrorCode = "invalid_audience"
	ErrCodeInvalidIssuer       ErrorCode = "invalid_issuer"
	ErrCodeInvalidSubject      ErrorCode = "invalid_subject"
	ErrCodeTokenExpired        ErrorCode = "token_expired"
	ErrCodeCookieExpired       ErrorCode = "cookie_expired"
	ErrCodeInvalidIssuedAt     ErrorCode = "invalid_issued_at"
	ErrCodeInvalidAuthTime     ErrorCode = "invalid_auth_time"
	ErrCodeInternal            ErrorCode = "internal_error"
)

var errorMessages = map[ErrorCode]string{
	ErrCodeInvalidTokenFormat:  "Invalid ID token format",
	ErrCodeInvalidCookieFormat: "Invalid session cookie format",
	ErrCodeInvalidToken:        "Invalid ID token",
	ErrCodeInvalidCookie:       "Invalid session cookie",
	ErrCodeInvalidAlgorithm:    "Unexpected signing algorithm",
	ErrCodeMissingKeyID:        "Missing key id",
	ErrCodeCertificateNotFound: "Signing certificate not found",
	ErrCodeNoKeysAvailable:     "No public keys available",
	ErrCodeKeysUnavailable:     "Public keys unavailable",
	ErrCodeInvalidSignature:    "Invalid signature",
	ErrCodeMissingProjectID:    "Missing project id",
	ErrCodeInvalidAudience:     "Invalid audience",
	ErrCodeInvalidIssuer:       "Invalid issuer",
	ErrCodeInvalidSubject:      "Invalid subject",
	ErrCodeTokenExpired:        "ID token expired",
	ErrCodeCookieExpired:       "Session cookie expired",
	ErrCodeInvalidIssuedAt:     "Invalid issued-at time",
	ErrCodeInvalidAuthTime:     "Invalid auth time",
	ErrCodeInternal:            "Internal error",
}

// Error wraps verifier errors with a stable code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := e.Message
	if base == "" {
		base = string(e.Code)
	}
	if e.Err == nil {
		return base
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, err error) error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = string(code)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf extracts the ErrorCode carried by err, or ErrCodeInternal when err
// did not originate from this package. A nil err yields an empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
