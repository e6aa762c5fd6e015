// Package apperror defines the error taxonomy surfaced at the HTTP boundary.
package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies an error by how the client should react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindRateLimited
	KindBadRequest
	KindNotFound
	KindConflict
)

// Machine-readable codes for security-relevant rejections.
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeTooManyRequests   = "TOO_MANY_REQUESTS"
	CodeAccessDenied      = "ACCESS_DENIED"
	CodeBadRequest        = "BAD_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
)

// Error is an expected rejection carrying the data needed to render it.
type Error struct {
	Kind       Kind
	Code       string // empty renders the integer status
	Message    string
	Reason     string // stable reason; rendered in 403 and 429 messages
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Unauthenticated returns a 401 error.
func Unauthenticated(reason, message string) *Error {
	return &Error{Kind: KindUnauthenticated, Code: CodeUnauthorized, Reason: reason, Message: message}
}

// Forbidden returns a 403 error with the ACCESS_DENIED code. The reason is
// appended to the message, e.g. "Access denied: not_owner".
func Forbidden(reason, message string) *Error {
	if reason != "" {
		message += ": " + reason
	}
	return &Error{Kind: KindForbidden, Code: CodeAccessDenied, Reason: reason, Message: message}
}

// RateLimited returns a 429 error whose message names the reason and the
// whole-second retry delay, e.g. "Rate limit exceeded: rapid_clicking. Retry after 60 seconds.".
func RateLimited(code, reason string, retryAfter time.Duration) *Error {
	secs := int(retryAfter.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return &Error{
		Kind:       KindRateLimited,
		Code:       code,
		Reason:     reason,
		Message:    fmt.Sprintf("Rate limit exceeded: %s. Retry after %d seconds.", reason, secs),
		RetryAfter: time.Duration(secs) * time.Second,
	}
}

// BadRequest returns a 400 error.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Code: CodeBadRequest, Reason: "bad_request", Message: message}
}

// NotFound returns a 404 error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Reason: "not_found", Message: message}
}

// Conflict returns a 409 error.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Reason: "conflict", Message: message}
}

// Internal returns a 500 error wrapping cause.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Reason: "internal_error", Message: "Internal server error", Cause: cause}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Wrap converts any error into an *Error. Unexpected errors become Internal.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	return Internal(err)
}

// Envelope is the standard error body.
type Envelope struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Code      any    `json:"code"`
	Timestamp string `json:"timestamp"`
}

// Write renders err with the standard envelope. Retry-After is set on 429.
// Internal causes are never written to the body.
func Write(w http.ResponseWriter, err error) {
	appErr := Wrap(err)
	status := appErr.Status()

	var code any = status
	if appErr.Code != "" {
		code = appErr.Code
	}

	message := appErr.Message
	if appErr.Kind == KindInternal {
		message = "Internal server error"
	}

	if status == http.StatusTooManyRequests && appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(appErr.RetryAfter.Seconds())))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Status:    "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
