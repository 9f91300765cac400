package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType classifies an AppError and picks its HTTP status
type ErrorType string

const (
	// Request errors
	ErrorTypeValidation   ErrorType = "VALIDATION"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeRateLimit    ErrorType = "RATE_LIMIT"

	// Server errors
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
	ErrorTypeExternal    ErrorType = "EXTERNAL"

	// Simulation errors
	ErrorTypeInvalidPair    ErrorType = "INVALID_PAIR"
	ErrorTypePersistence    ErrorType = "PERSISTENCE_FAILURE"
	ErrorTypeEventSink      ErrorType = "EVENT_SINK_FAILURE"
	ErrorTypeConcurrentTick ErrorType = "CONCURRENT_TICK_REJECTED"
)

// Sentinels for errors.Is matching. Matching is by Type only.
var (
	ErrNotFound               = &AppError{Type: ErrorTypeNotFound}
	ErrInvalidPair            = &AppError{Type: ErrorTypeInvalidPair}
	ErrUnavailable            = &AppError{Type: ErrorTypeUnavailable}
	ErrPersistenceFailure     = &AppError{Type: ErrorTypePersistence}
	ErrEventSinkFailure       = &AppError{Type: ErrorTypeEventSink}
	ErrConcurrentTickRejected = &AppError{Type: ErrorTypeConcurrentTick}
)

// AppError is an application failure with a type, an HTTP status and an
// optional cause
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func newAppError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		Cause:      cause,
		HTTPStatus: status,
		StackTrace: captureStackTrace(),
	}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError of the same type.
// A target carrying a Code must also match the code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && (t.Code == "" || t.Code == e.Code)
}

// WithDetails attaches details shown in the error response
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// captureStackTrace records the constructor's caller chain
func captureStackTrace() string {
	var pcs [32]uintptr
	n := runtime.Callers(4, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return b.String()
}

// NewValidationError reports bad input
func NewValidationError(message string) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, nil)
}

// NewNotFoundError reports a missing resource
func NewNotFoundError(resource string) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, resource+" not found", nil)
}

// NewInternalError reports a failure the caller cannot act on
func NewInternalError(message string) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, nil)
}

// NewUnavailableError reports a backing service that shed the request.
// Retrying later may succeed.
func NewUnavailableError(service string, cause error) *AppError {
	return newAppError(ErrorTypeUnavailable, http.StatusServiceUnavailable,
		fmt.Sprintf("service '%s' is unavailable", service), cause)
}

// NewInvalidPairError creates an error for a pair the resolver must not see
func NewInvalidPairError(message string) *AppError {
	return newAppError(ErrorTypeInvalidPair, http.StatusUnprocessableEntity, message, nil)
}

// NewPersistenceError creates an error for a failed store read or write
func NewPersistenceError(operation string, err error) *AppError {
	return newAppError(ErrorTypePersistence, http.StatusServiceUnavailable,
		fmt.Sprintf("persistence operation '%s' failed", operation), err)
}

// NewEventSinkError creates an error for a failed event publication
func NewEventSinkError(err error) *AppError {
	return newAppError(ErrorTypeEventSink, http.StatusBadGateway, "event sink rejected events", err)
}

// NewConcurrentTickError is returned to a trigger that lost the tick race
func NewConcurrentTickError(universeID string) *AppError {
	return &AppError{
		Type:       ErrorTypeConcurrentTick,
		Message:    fmt.Sprintf("a tick is already running for universe '%s'", universeID),
		HTTPStatus: http.StatusConflict,
	}
}

// GetAppError returns the first AppError in the chain, or nil
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType reports whether the first AppError in the chain has type errType
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

func IsNotFound(err error) bool       { return IsType(err, ErrorTypeNotFound) }
func IsValidation(err error) bool     { return IsType(err, ErrorTypeValidation) }
func IsInvalidPair(err error) bool    { return IsType(err, ErrorTypeInvalidPair) }
func IsPersistence(err error) bool    { return IsType(err, ErrorTypePersistence) }
func IsConcurrentTick(err error) bool { return IsType(err, ErrorTypeConcurrentTick) }
