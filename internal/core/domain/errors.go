// Package domain defines the core domain models for spoolmesh.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured,
// stable error code. Codes are surfaced verbatim in wire responses so
// clients can dispatch on them without parsing messages.
type DomainError struct {
	Code    string // Error code (e.g., "SM-SPOOL-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support; two DomainErrors match when their
// codes match, regardless of details or cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Spool Errors (SPOOL)
// ============================================================================

var (
	// ErrSpoolNotFound indicates the referenced spool does not exist,
	// either never created or already purged.
	ErrSpoolNotFound = NewDomainError("SM-SPOOL-4040", "spool not found")

	// ErrMessageNotFound indicates the sequence number has not been
	// assigned within an existing spool.
	ErrMessageNotFound = NewDomainError("SM-SPOOL-4041", "message not found")

	// ErrSpoolExists indicates a spool identifier collision on create.
	// The manager regenerates the identifier and retries.
	ErrSpoolExists = NewDomainError("SM-SPOOL-4090", "spool id already exists")

	// ErrSequenceConflict indicates the store's expected-sequence check
	// failed. Under correct per-spool locking this only fires for
	// replayed append requests carrying a stale expected sequence; any
	// other occurrence is a locking bug.
	ErrSequenceConflict = NewDomainError("SM-SPOOL-4091", "sequence conflict")

	// ErrSequenceExhausted indicates the sequence counter reached its
	// maximum; the spool accepts no further appends.
	ErrSequenceExhausted = NewDomainError("SM-SPOOL-4092", "sequence space exhausted")

	// ErrPayloadTooLarge indicates the payload exceeds the configured
	// maximum size.
	ErrPayloadTooLarge = NewDomainError("SM-SPOOL-4130", "payload too large")
)

// ============================================================================
// Authorization Errors (AUTH)
// ============================================================================

var (
	// ErrUnauthorized indicates signature verification failed for a
	// mutating request.
	ErrUnauthorized = NewDomainError("SM-AUTH-4010", "signature verification failed")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal error.
	ErrInternalServer = NewDomainError("SM-SYS-5000", "internal server error")

	// ErrStorageUnavailable indicates the durable store failed to
	// read, write, or sync. Fatal for the triggering request only.
	ErrStorageUnavailable = NewDomainError("SM-SYS-5001", "storage unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("SM-SYS-4000", "bad request")

	// ErrBusy indicates the per-spool lock could not be acquired
	// within the bounded wait. Retryable by the caller.
	ErrBusy = NewDomainError("SM-SYS-4290", "spool busy")
)
