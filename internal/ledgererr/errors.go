// Package ledgererr holds the failure taxonomy shared by the ledger core and its boundaries.
package ledgererr

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine readable failure category.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindAccountNotFound     Kind = "ACCOUNT_NOT_FOUND"
	KindAccountFrozen       Kind = "ACCOUNT_FROZEN"
	KindInsufficientFunds   Kind = "INSUFFICIENT_FUNDS"
	KindCurrencyMismatch    Kind = "CURRENCY_MISMATCH"
	KindIdempotencyConflict Kind = "IDEMPOTENCY_CONFLICT"
	KindLockContention      Kind = "LOCK_CONTENTION"
	KindOptimisticConflict  Kind = "OPTIMISTIC_CONFLICT"
	KindUnexpected          Kind = "UNEXPECTED"
)

// Retryable reports whether resubmitting the same request may succeed.
func (k Kind) Retryable() bool {
	return k == KindLockContention || k == KindOptimisticConflict
}

// RecordsFailure reports whether a failure of this kind, raised after the PENDING
// transaction exists, must be persisted as FAILED.
func (k Kind) RecordsFailure() bool {
	switch k {
	case KindAccountNotFound, KindAccountFrozen, KindInsufficientFunds, KindCurrencyMismatch:
		return true
	}
	return false
}

// Error is a categorized ledger failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when the target carries no message,
// so the package sentinels can be used with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrAccountNotFound     = &Error{Kind: KindAccountNotFound}
	ErrAccountFrozen       = &Error{Kind: KindAccountFrozen}
	ErrInsufficientFunds   = &Error{Kind: KindInsufficientFunds}
	ErrCurrencyMismatch    = &Error{Kind: KindCurrencyMismatch}
	ErrIdempotencyConflict = &Error{Kind: KindIdempotencyConflict}
	ErrLockContention      = &Error{Kind: KindLockContention}
	ErrOptimisticConflict  = &Error{Kind: KindOptimisticConflict}
)

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation is shorthand for a request-shape failure.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

// KindOf returns the kind of the first *Error in the chain, or KindUnexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnexpected
}

// IsRetryable reports whether err belongs to a retryable kind.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// PublicMessage is the message safe to show a caller. Unexpected failures never
// leak their internal detail.
func PublicMessage(err error) string {
	var le *Error
	if errors.As(err, &le) && le.Kind != KindUnexpected {
		if le.Message != "" {
			return le.Message
		}
		return string(le.Kind)
	}
	return "Unexpected server error"
}
