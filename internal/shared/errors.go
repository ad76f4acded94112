package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a caller-correctable request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates the request conflicts with current state.
	ErrConflict = errors.New("conflict")
	// ErrInvalidFormat is matched by every FormatError.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrDuplicateIdentifier is returned by the store when a login identifier is already taken.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	// ErrProvisioningConflict signals that identifier retries were exhausted.
	ErrProvisioningConflict = errors.New("provisioning conflict")
	// ErrDeliveryFailed marks a notification that could not be delivered.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrAuditWriteFailed marks an audit entry that could not be persisted after a state change.
	ErrAuditWriteFailed = errors.New("audit write failed")
	// ErrInvalidCredentials indicates a credential check failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// FormatError reports a caller-correctable contact or profile field.
type FormatError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *FormatError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidFormat) match any FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

// NewFormatError builds a FormatError for field.
func NewFormatError(field, reason string) *FormatError {
	return &FormatError{Field: field, Reason: reason}
}
