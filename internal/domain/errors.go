package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind groups errors by how callers should react to them
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindRateLimited ErrorKind = "rate_limited"
	KindBlocked     ErrorKind = "blocked"
	KindNotFound    ErrorKind = "not_found"
	KindUnavailable ErrorKind = "unavailable"
)

// Error is a per-request failure that is safe to report to clients.
// Two Errors match under errors.Is when their codes match.
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
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

// Is matches on the error code so wrapped or rebuilt errors compare equal to sentinels
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrInvalidURL              = &Error{Kind: KindValidation, Code: "invalid_url", Message: "Invalid URL provided."}
	ErrInvalidShortCode        = &Error{Kind: KindValidation, Code: "invalid_code", Message: "Invalid short code format."}
	ErrInvalidAction           = &Error{Kind: KindValidation, Code: "invalid_action", Message: "Unknown rate-limited action."}
	ErrNotFound                = &Error{Kind: KindNotFound, Code: "not_found", Message: "Short URL not found."}
	ErrExpired                 = &Error{Kind: KindNotFound, Code: "expired", Message: "Short URL has expired."}
	ErrSuspiciousActivity      = &Error{Kind: KindBlocked, Code: "suspicious_activity", Message: "Request blocked."}
	ErrCodeGenerationExhausted = &Error{Kind: KindUnavailable, Code: "code_generation_exhausted", Message: "Failed to generate a unique short code."}
	ErrStoreUnavailable        = &Error{Kind: KindUnavailable, Code: "store_unavailable", Message: "Service temporarily unavailable. Please retry."}
)

// NewRateLimited builds a rate_limited error for the tier that tripped
func NewRateLimited(reason, message string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Code:       reason,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// NewUnsafeURL builds a blocked error for a URL the safety checks rejected
func NewUnsafeURL(reason, message string) *Error {
	return &Error{
		Kind:    KindBlocked,
		Code:    reason,
		Message: message,
	}
}

// Unavailable wraps a backing-store failure
func Unavailable(err error) *Error {
	return &Error{
		Kind:    ErrStoreUnavailable.Kind,
		Code:    ErrStoreUnavailable.Code,
		Message: ErrStoreUnavailable.Message,
		Err:     err,
	}
}

// KindOf returns the kind of a domain error, or "" for anything else
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// AsError extracts a domain error from the chain
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
