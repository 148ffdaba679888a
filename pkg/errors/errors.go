package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the core failure taxonomy. Services wrap these into
// AppError values; the HTTP adapter translates them into problem documents.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthentication = errors.New("authentication required")
	ErrAuthorization  = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrBusinessRule   = errors.New("business rule violation")
	ErrRateLimit      = errors.New("rate limit exceeded")
	ErrDependency     = errors.New("external dependency failure")
	ErrInternal       = errors.New("internal error")
)

// Stable error codes carried by AppError and surfaced in problem documents.
const (
	CodeValidation     = "VALIDATION"
	CodeAuthentication = "AUTHENTICATION"
	CodeAuthorization  = "AUTHORIZATION"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeBusinessRule   = "BUSINESS_RULE"
	CodeRateLimit      = "RATE_LIMIT"
	CodeDependency     = "DEPENDENCY"
	CodeInternal       = "INTERNAL"
)

// AppError represents an application error with a stable reason code.
type AppError struct {
	Err        error             `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
	// Retryable marks DEPENDENCY failures where a repeat of the same
	// request may succeed (e.g. terminal timeout).
	Retryable bool `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Validation reports malformed input. Details map field names to reasons.
func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       CodeValidation,
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// ValidationMsg reports malformed input with a single message.
func ValidationMsg(message string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       CodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// Unauthenticated reports a missing or invalid credential.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:        ErrAuthentication,
		Code:       CodeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// Forbidden reports a permission failure.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:        ErrAuthorization,
		Code:       CodeAuthorization,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NotFound reports a missing resource. Tenant-foreign rows are reported the
// same way so a caller cannot probe other tenants' keyspaces.
func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// Conflict reports a version mismatch or unique-key collision. Callers see
// this as "modified by another user, refresh and retry".
func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       CodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// BusinessRule reports a state machine or invariant violation. The reason
// code is stable so client UIs can route on it.
func BusinessRule(reason string, message string) *AppError {
	return &AppError{
		Err:        ErrBusinessRule,
		Code:       CodeBusinessRule,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]string{"reason": reason},
	}
}

// RateLimited reports that the caller exceeded the request budget.
func RateLimited() *AppError {
	return &AppError{
		Err:        ErrRateLimit,
		Code:       CodeRateLimit,
		Message:    "too many requests",
		StatusCode: http.StatusTooManyRequests,
	}
}

// Dependency reports an external collaborator failure (payment terminal,
// printer driver). retryable marks transient outcomes such as timeouts.
func Dependency(system string, err error, retryable bool) *AppError {
	return &AppError{
		Err:        errors.Join(ErrDependency, err),
		Code:       CodeDependency,
		Message:    fmt.Sprintf("%s unavailable", system),
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  retryable,
	}
}

// Internal reports an unexpected failure.
func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       CodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// Reason returns the stable business-rule reason code, or "".
func (e *AppError) Reason() string {
	if e.Details == nil {
		return ""
	}
	return e.Details["reason"]
}

// Code returns the stable code of an error, or CodeInternal when the error
// is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// ReasonOf returns the business-rule reason of an error, or "".
func ReasonOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason()
	}
	return ""
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
