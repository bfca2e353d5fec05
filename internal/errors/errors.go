package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Validation
	ErrCodeInvalidLogin   ErrorCode = "INVALID_LOGIN"
	ErrCodeMessageTooLong ErrorCode = "MESSAGE_TOO_LONG"
	ErrCodeInvalidMessage ErrorCode = "INVALID_MESSAGE"
	ErrCodeValidation     ErrorCode = "VALIDATION_ERROR"

	// Directory
	ErrCodeLoginExists   ErrorCode = "LOGIN_EXISTS"
	ErrCodeLoginNotFound ErrorCode = "LOGIN_NOT_FOUND"
	ErrCodeUserOffline   ErrorCode = "USER_OFFLINE"
	ErrCodeNotAuthorized ErrorCode = "NOT_AUTHORIZED"

	// Resource
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeServerFull ErrorCode = "SERVER_FULL"

	// Internal
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase    ErrorCode = "DATABASE_ERROR"
	ErrCodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Numeric codes carried in command-channel replies.
const (
	WireSuccess        = 0
	WireUnknown        = 1
	WireInvalidLogin   = 2
	WireLoginExists    = 3
	WireLoginNotFound  = 4
	WireUserOffline    = 5
	WireMessageTooLong = 6
	WireServerFull     = 7
	WireInvalidMessage = 8
	WireNotAuthorized  = 9
	WireInternal       = 10
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func InvalidLogin(login string) *AppError {
	return New(ErrCodeInvalidLogin, fmt.Sprintf("Invalid login %q", login))
}

func MessageTooLong(size, limit int) *AppError {
	return New(ErrCodeMessageTooLong, fmt.Sprintf("Message body is %d bytes, limit is %d", size, limit))
}

func InvalidMessage(reason string) *AppError {
	return New(ErrCodeInvalidMessage, reason)
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func LoginExists(login string) *AppError {
	return New(ErrCodeLoginExists, fmt.Sprintf("Login %s already exists", login))
}

func LoginNotFound(login string) *AppError {
	return New(ErrCodeLoginNotFound, fmt.Sprintf("Login %s not found", login))
}

func UserOffline(login string) *AppError {
	return New(ErrCodeUserOffline, fmt.Sprintf("User %s is offline", login))
}

func NotAuthorized(login string) *AppError {
	return New(ErrCodeNotAuthorized, fmt.Sprintf("User %s is not authorized", login))
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ServerFull(capacity int) *AppError {
	return New(ErrCodeServerFull, fmt.Sprintf("Offline store is full (%d messages)", capacity))
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func Unavailable(feature string) *AppError {
	return New(ErrCodeUnavailable, fmt.Sprintf("%s is not enabled", feature))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// WireCode maps an error to the numeric code sent back to clients. A nil
// error is success.
func WireCode(err error) int {
	if err == nil {
		return WireSuccess
	}
	return wireFromCode(GetCode(err))
}

func wireFromCode(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidLogin:
		return WireInvalidLogin
	case ErrCodeLoginExists:
		return WireLoginExists
	case ErrCodeLoginNotFound, ErrCodeNotFound:
		return WireLoginNotFound
	case ErrCodeUserOffline:
		return WireUserOffline
	case ErrCodeMessageTooLong:
		return WireMessageTooLong
	case ErrCodeServerFull:
		return WireServerFull
	case ErrCodeInvalidMessage, ErrCodeValidation:
		return WireInvalidMessage
	case ErrCodeNotAuthorized:
		return WireNotAuthorized
	case ErrCodeInternal, ErrCodeDatabase, ErrCodeUnavailable:
		return WireInternal
	default:
		return WireUnknown
	}
}
