package models

import (
	"errors"
	"fmt"
)

// Common error types
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrConflict       = errors.New("operation conflicts with current state")
)

// ErrorKind classifies a failure for retry decisions
type ErrorKind string

// Failure classifications. Validation and provider rejections are never
// retried; transport failures retry up to the dispatcher's max attempts;
// configuration failures are fatal at registry resolution.
const (
	ErrKindValidation       ErrorKind = "INVALID_INPUT"
	ErrKindTransport        ErrorKind = "TRANSPORT"
	ErrKindProviderRejected ErrorKind = "PROVIDER_REJECTED"
	ErrKindConfig           ErrorKind = "CONFIG"
	ErrKindCapability       ErrorKind = "CAPABILITY_UNSUPPORTED"
	ErrKindNotFound         ErrorKind = "NOT_FOUND"
)

// AppError represents an application-level error with context
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// KindOf extracts the classification from an error chain. Unclassified
// errors are treated as transport failures so they stay retryable.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return ErrKindNotFound
	}
	return ErrKindTransport
}

// IsRetryable reports whether a failure with this kind may be retried
func (k ErrorKind) IsRetryable() bool {
	return k == ErrKindTransport
}

// ErrInvalidInput creates a validation error
func ErrInvalidInput(message string) error {
	return &AppError{Kind: ErrKindValidation, Message: message}
}

// ErrTransport creates a retryable transport error
func ErrTransport(message string, err error) error {
	return &AppError{Kind: ErrKindTransport, Message: message, Err: err}
}

// ErrProviderRejected creates a terminal provider rejection
func ErrProviderRejected(message string) error {
	return &AppError{Kind: ErrKindProviderRejected, Message: message}
}

// ErrConfig creates a configuration error, fatal at registry resolution
func ErrConfig(message string, err error) error {
	return &AppError{Kind: ErrKindConfig, Message: message, Err: err}
}

// ErrCapability reports that an adapter does not implement a capability
func ErrCapability(message string) error {
	return &AppError{Kind: ErrKindCapability, Message: message}
}

// ErrNotFoundWithMsg creates a not found error with custom message
func ErrNotFoundWithMsg(message string) error {
	return &AppError{Kind: ErrKindNotFound, Message: message, Err: ErrNotFound}
}
