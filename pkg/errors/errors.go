package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes surfaced by the identity core
const (
	// Generic errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeAccessDenied ErrorCode = "ACCESS_DENIED"

	// Store errors
	ErrCodeDuplicateName          ErrorCode = "DUPLICATE_NAME"
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"

	// User/role errors
	ErrCodeUserNotFound ErrorCode = "USER_NOT_FOUND"
	ErrCodeRoleNotFound ErrorCode = "ROLE_NOT_FOUND"
)

// Problem detail keys a presentation layer can resolve into localized messages.
const (
	ReasonDuplicateName  = "problemDetail.user.duplicateName"
	ReasonSignUpDisabled = "problemDetail.user.signUpFailed.disallowed"
	ReasonUserNotFound   = "problemDetail.user.notFound"
	ReasonRoleNotFound   = "problemDetail.role.notFound"
	ReasonConflict       = "problemDetail.optimisticLockingFailure"
)

// CauseNoDefaultRole is the "cause" detail telling a sign-up refused for a
// missing default role apart from one refused because registration is closed.
// Both carry ReasonSignUpDisabled.
const CauseNoDefaultRole = "noDefaultRole"

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Reason  string                 // Machine-readable problem detail key
	Details map[string]interface{} // Offending identifiers, e.g. "name" or "role"
	Err     error                  // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithReason sets the problem detail key
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrapf wraps an existing error with code and formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code.
// The outermost structured error wins.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error
// Returns ErrCodeInternal if the error is not a structured Error
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetDetails extracts the details from an error
// Returns nil if the error is not a structured Error
func GetDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// GetReason extracts the problem detail key from an error
func GetReason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsInvalidArgument reports whether err belongs to the invalid-argument class.
// An unknown role name is an invalid argument to the caller.
func IsInvalidArgument(err error) bool {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeRoleNotFound:
		return true
	}
	return false
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeRoleNotFound:
		return http.StatusBadRequest
	case ErrCodeAccessDenied:
		return http.StatusForbidden
	case ErrCodeNotFound, ErrCodeUserNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicateName, ErrCodeConcurrentModification:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for frequently used errors

// UserNotFound creates a "user not found" error naming the user
func UserNotFound(username string) *Error {
	return Newf(ErrCodeUserNotFound, "user not found: %s", username).
		WithReason(ReasonUserNotFound).
		WithDetail("name", username)
}

// DuplicateName creates a "name already in use" error naming the collision
func DuplicateName(resourceType, name string) *Error {
	return Newf(ErrCodeDuplicateName, "%s name is already in use: %s", resourceType, name).
		WithReason(ReasonDuplicateName).
		WithDetail("name", name)
}

// RoleNotFound creates an error naming the missing role
func RoleNotFound(roleName string) *Error {
	return Newf(ErrCodeRoleNotFound, "role [%s] is not found", roleName).
		WithReason(ReasonRoleNotFound).
		WithDetail("role", roleName)
}

// InvalidInput creates an "invalid input" error
func InvalidInput(field, reason string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason)).
		WithDetail("field", field)
}

// AccessDenied creates an "access denied" error with a problem detail key
func AccessDenied(message, reason string) *Error {
	return New(ErrCodeAccessDenied, message).WithReason(reason)
}

// Internal creates an "internal error"
func Internal(message string) *Error {
	return New(ErrCodeInternal, message)
}

// InternalWrap wraps an internal error
func InternalWrap(err error, message string) *Error {
	return Wrap(err, ErrCodeInternal, message)
}
