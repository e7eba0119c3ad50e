package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	ErrorCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrorCodeConflict            ErrorCode = "CONFLICT"
	ErrorCodeInvalidState        ErrorCode = "INVALID_STATE"
	ErrorCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrorCodeProviderError       ErrorCode = "PROVIDER_ERROR"
	ErrorCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrorCodePersistence         ErrorCode = "PERSISTENCE_ERROR"

	// ErrorCodeVersionConflict is raised by stores when an optimistic
	// version check fails. It never leaves the service layer.
	ErrorCodeVersionConflict ErrorCode = "VERSION_CONFLICT"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// ProviderError carries the billing provider's own rejection reason.
type ProviderError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("provider rejected request (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider rejected request (%s): %s", e.Code, e.Message)
}

// NewProviderError wraps a provider rejection in a PROVIDER_ERROR domain error.
func NewProviderError(code, message string, statusCode int) *DomainError {
	return WrapError(ErrorCodeProviderError, "billing provider rejected the request",
		&ProviderError{Code: code, Message: message, StatusCode: statusCode})
}

// NewProviderUnavailable reports a timeout or transport failure talking to the provider.
func NewProviderUnavailable(err error) *DomainError {
	return WrapError(ErrorCodeProviderUnavailable, "billing provider unavailable", err)
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

func IsNotFound(err error) bool            { return IsDomainError(err, ErrorCodeNotFound) }
func IsConflict(err error) bool            { return IsDomainError(err, ErrorCodeConflict) }
func IsInvalidState(err error) bool        { return IsDomainError(err, ErrorCodeInvalidState) }
func IsValidation(err error) bool          { return IsDomainError(err, ErrorCodeValidation) }
func IsProviderError(err error) bool       { return IsDomainError(err, ErrorCodeProviderError) }
func IsProviderUnavailable(err error) bool { return IsDomainError(err, ErrorCodeProviderUnavailable) }
func IsPersistenceError(err error) bool    { return IsDomainError(err, ErrorCodePersistence) }
func IsVersionConflict(err error) bool     { return IsDomainError(err, ErrorCodeVersionConflict) }

// ErrSubscriptionNotFound and friends are shared sentinels wrapped by the
// constructors below so callers can match either by code or with errors.Is.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrActiveSubscription   = errors.New("user already has an active subscription")
	ErrStaleVersion         = errors.New("subscription was modified concurrently")
)

func NewSubscriptionNotFound(id string) *DomainError {
	return WrapError(ErrorCodeNotFound, "subscription not found", ErrSubscriptionNotFound).
		WithDetail("subscription_id", id)
}

func NewPlanNotFound(planID string) *DomainError {
	return WrapError(ErrorCodeNotFound, "plan not found", ErrPlanNotFound).
		WithDetail("plan_id", planID)
}

func NewAccountNotFound(userID string) *DomainError {
	return WrapError(ErrorCodeNotFound, "account not found", ErrAccountNotFound).
		WithDetail("user_id", userID)
}

func NewVersionConflict(id string) *DomainError {
	return WrapError(ErrorCodeVersionConflict, "stale subscription version", ErrStaleVersion).
		WithDetail("subscription_id", id)
}

func NewPersistenceError(message string, err error) *DomainError {
	return WrapError(ErrorCodePersistence, message, err)
}
