package domain

import (
	"errors"
	"fmt"
)

// Kind is the stable error class reported to callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindValidation
	KindNotFound
	KindBusinessRule
	KindConflict
	KindStore
	KindPartialFailure
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule_violation"
	case KindConflict:
		return "conflict"
	case KindStore:
		return "store_error"
	case KindPartialFailure:
		return "partial_failure"
	}
	return "unknown"
}

// Error pairs a Kind with a message that is safe to show to clients.
// The wrapped cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrUnauthenticated = newError(KindUnauthenticated, "authentication required")

	ErrInvalidAmount   = newError(KindValidation, "amount must be a positive value with at most 2 decimal places")
	ErrSameAccount     = newError(KindValidation, "source and destination accounts must differ")
	ErrInvalidPeriod   = newError(KindValidation, "period must be one of week, month, quarter, year")
	ErrInvalidCurrency = newError(KindValidation, "currency must be a 3-letter code")

	ErrAccountNotFound      = newError(KindNotFound, "account not found")
	ErrDestinationNotFound  = newError(KindNotFound, "destination account not found")
	ErrTransactionNotFound  = newError(KindNotFound, "transaction not found")
	ErrNotificationNotFound = newError(KindNotFound, "notification not found")
	ErrProfileNotFound      = newError(KindNotFound, "profile not found")

	ErrInsufficientBalance = newError(KindBusinessRule, "insufficient balance")
	ErrAccountInactive     = newError(KindBusinessRule, "account is not active")
	ErrDestinationInactive = newError(KindBusinessRule, "destination account is not active")
	ErrNonZeroBalance      = newError(KindBusinessRule, "account balance must be zero to close")
	ErrDailyLimit          = newError(KindBusinessRule, "daily spend limit exceeded")
	ErrMonthlyLimit        = newError(KindBusinessRule, "monthly spend limit exceeded")
	ErrEntryFinalized      = newError(KindBusinessRule, "ledger entry is no longer pending")

	ErrVersionConflict  = newError(KindConflict, "account was modified concurrently")
	ErrDuplicateNumber  = newError(KindConflict, "account number already exists")
	ErrRetriesExhausted = newError(KindConflict, "too much contention on account, retry later")
)

// Validation builds a validation error with a custom message.
func Validation(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Sprintf(format, args...))
}

// BusinessRule builds a business-rule violation with a custom message.
func BusinessRule(format string, args ...any) *Error {
	return newError(KindBusinessRule, fmt.Sprintf(format, args...))
}

// StoreError wraps a backing store failure. The cause never reaches clients.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStore, Message: op, Err: err}
}

// PartialFailure marks a multi-step write that failed after its first write.
func PartialFailure(op string, err error) error {
	return &Error{Kind: KindPartialFailure, Message: op, Err: err}
}

// KindOf classifies any error; errors without a Kind are KindUnknown.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// PublicMessage is the text a client may see for err.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		switch de.Kind {
		case KindStore, KindPartialFailure, KindUnknown:
			return "internal server error"
		}
		return de.Message
	}
	return "internal server error"
}
