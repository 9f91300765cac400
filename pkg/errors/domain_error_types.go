package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// DomainErrorType is the category of a rule the domain refused to break
type DomainErrorType string

const (
	DomainValidationError    DomainErrorType = "VALIDATION_ERROR"
	DomainBusinessRuleError  DomainErrorType = "BUSINESS_RULE_ERROR"
	DomainNotFoundError      DomainErrorType = "NOT_FOUND"
	DomainConflictError      DomainErrorType = "CONFLICT"
	DomainAuthorizationError DomainErrorType = "AUTHORIZATION_ERROR"
)

var domainStatus = map[DomainErrorType]int{
	DomainValidationError:    http.StatusBadRequest,
	DomainBusinessRuleError:  http.StatusUnprocessableEntity,
	DomainNotFoundError:      http.StatusNotFound,
	DomainConflictError:      http.StatusConflict,
	DomainAuthorizationError: http.StatusForbidden,
}

// DomainError carries a stable code alongside the category so clients can
// branch on it
type DomainError struct {
	Type       DomainErrorType        `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

// NewDomainError creates a domain error; the status follows the category
func NewDomainError(errorType DomainErrorType, code string, message string) *DomainError {
	status, ok := domainStatus[errorType]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &DomainError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Details:    make(map[string]interface{}),
		StatusCode: status,
	}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// WithCause sets the underlying error
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetails merges details into the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithRetryable marks whether the same request may succeed later
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// Is matches on category and code, so a fresh error with details still
// matches its sentinel
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Sentinels. Never mutate them; build a fresh error with NewDomainError and
// the same code when details are needed.
var (
	ErrParticleExpired = NewDomainError(
		DomainConflictError,
		"PARTICLE_EXPIRED",
		"The particle has expired and can no longer change",
	)

	ErrParticleAlreadySpawned = NewDomainError(
		DomainConflictError,
		"PARTICLE_ALREADY_SPAWNED",
		"The user already owns a live particle",
	)

	ErrInvalidParticleMass = NewDomainError(
		DomainValidationError,
		"INVALID_PARTICLE_MASS",
		"Particle mass must be positive",
	)

	ErrInvalidParticleEnergy = NewDomainError(
		DomainValidationError,
		"INVALID_PARTICLE_ENERGY",
		"Particle energy must not be negative",
	)

	ErrInvalidParticlePosition = NewDomainError(
		DomainValidationError,
		"INVALID_PARTICLE_POSITION",
		"Particle position is outside the universe",
	)

	ErrIllegalTransition = NewDomainError(
		DomainBusinessRuleError,
		"ILLEGAL_STATE_TRANSITION",
		"The requested lifecycle transition is not allowed",
	)

	ErrSplitNotSupported = NewDomainError(
		DomainBusinessRuleError,
		"SPLIT_NOT_SUPPORTED",
		"Splitting has no defined policy",
	)

	ErrUserNotAuthorized = NewDomainError(
		DomainAuthorizationError,
		"USER_NOT_AUTHORIZED",
		"User is not authorized to perform this action",
	)

	ErrConcurrentModification = NewDomainError(
		DomainConflictError,
		"CONCURRENT_MODIFICATION",
		"The resource was modified by another process",
	).WithRetryable(true)
)

// NewVersionConflictError reports that a conditional write found a version
// other than the one it expected. It matches ErrConcurrentModification.
func NewVersionConflictError(resource string, expected int) *DomainError {
	return NewDomainError(
		DomainConflictError,
		ErrConcurrentModification.Code,
		ErrConcurrentModification.Message,
	).WithRetryable(true).WithDetails(map[string]interface{}{
		"resource":         resource,
		"expected_version": expected,
	})
}

// ValidationErrors collects every failed check of one validation pass
type ValidationErrors struct {
	Errors []*DomainError `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make([]*DomainError, 0)}
}

// Add records a failed check on field
func (v *ValidationErrors) Add(field string, message string) {
	v.Errors = append(v.Errors, NewDomainError(DomainValidationError, "FIELD_VALIDATION_ERROR", message).
		WithDetails(map[string]interface{}{"field": field}))
}

func (v *ValidationErrors) AddError(err *DomainError) {
	v.Errors = append(v.Errors, err)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Message
	}
	return "Validation failed: " + strings.Join(messages, "; ")
}
