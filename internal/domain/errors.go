package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so callers can route on it without string
// matching. Validation kinds are expected business outcomes; Infrastructure
// means the outcome of the attempt is indeterminate.
type ErrorKind string

const (
	KindResourceBusy         ErrorKind = "RESOURCE_BUSY"
	KindNotFound             ErrorKind = "NOT_FOUND"
	KindOwnershipMismatch    ErrorKind = "OWNERSHIP_MISMATCH"
	KindAccountInactive      ErrorKind = "ACCOUNT_INACTIVE"
	KindInsufficientBalance  ErrorKind = "INSUFFICIENT_BALANCE"
	KindInvalidAmount        ErrorKind = "INVALID_AMOUNT"
	KindAccountLimitExceeded ErrorKind = "ACCOUNT_LIMIT_EXCEEDED"
	KindBalanceNotEmpty      ErrorKind = "BALANCE_NOT_EMPTY"
	KindInfrastructure       ErrorKind = "INFRASTRUCTURE"
)

// Error is a tagged error carrying an ErrorKind. Business failures are values
// of this type rather than sentinel comparisons so the coordinator can decide
// deterministically whether a FAILURE record must be written.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// E builds a plain domain error.
func E(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a domain error around an underlying cause.
func Wrap(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the ErrorKind from err. Errors that are not domain errors
// are treated as infrastructure faults.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInfrastructure
}

// IsValidation reports whether kind is an expected business outcome, as
// opposed to lock contention or an infrastructure fault.
func IsValidation(kind ErrorKind) bool {
	switch kind {
	case KindNotFound, KindOwnershipMismatch, KindAccountInactive,
		KindInsufficientBalance, KindInvalidAmount,
		KindAccountLimitExceeded, KindBalanceNotEmpty:
		return true
	}
	return false
}
