package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeConflict         = "CONFLICT"
	ErrCodeTransient        = "TRANSIENT"
	ErrCodeAlreadyTerminal  = "ALREADY_TERMINAL"
	ErrCodeDuplicateInvoice = "DUPLICATE_INVOICE"
)

// Error constructors

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) error {
	return &DomainError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &DomainError{
		Code:    ErrCodeValidation,
		Message: msg,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError() error {
	return &DomainError{
		Code:    ErrCodeUnauthorized,
		Message: "Authentication required",
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(msg string) error {
	return &DomainError{
		Code:    ErrCodeForbidden,
		Message: msg,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(err error) error {
	return &DomainError{
		Code:    ErrCodeInternal,
		Message: "An internal error occurred",
		Err:     err,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(msg string) error {
	return &DomainError{
		Code:    ErrCodeConflict,
		Message: msg,
	}
}

// NewTransientError marks an infrastructure failure whose outcome is unknown.
// Callers retry the same idempotent operation.
func NewTransientError(msg string, err error) error {
	return &DomainError{
		Code:    ErrCodeTransient,
		Message: msg,
		Err:     err,
	}
}

// NewAlreadyTerminalError creates an error for a ledger entry that already left the accrued state
func NewAlreadyTerminalError(entryID, status string) error {
	return &DomainError{
		Code:    ErrCodeAlreadyTerminal,
		Message: fmt.Sprintf("ledger entry %s is already %s", entryID, status),
	}
}

// NewDuplicateInvoiceError creates an error for a second accrual against the same invoice
func NewDuplicateInvoiceError(partnerID, invoiceID string) error {
	return &DomainError{
		Code:    ErrCodeDuplicateInvoice,
		Message: fmt.Sprintf("invoice %s already accrued for partner %s", invoiceID, partnerID),
	}
}

// Helper functions to check error types

func hasCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool {
	return hasCode(err, ErrCodeUnauthorized)
}

// IsForbidden checks if the error is a forbidden error
func IsForbidden(err error) bool {
	return hasCode(err, ErrCodeForbidden)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return hasCode(err, ErrCodeInternal)
}

// IsConflict checks if the error is a conflict error
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsTransient checks if the error is a transient infrastructure error
func IsTransient(err error) bool {
	return hasCode(err, ErrCodeTransient)
}

// IsAlreadyTerminal checks if the error rejects a terminal ledger transition
func IsAlreadyTerminal(err error) bool {
	return hasCode(err, ErrCodeAlreadyTerminal)
}

// IsDuplicateInvoice checks if the error rejects a duplicate invoice accrual
func IsDuplicateInvoice(err error) bool {
	return hasCode(err, ErrCodeDuplicateInvoice)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ErrCodeInternal
}

// Message returns the caller-facing message of a domain error, or "" for other errors
func Message(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}
