package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidCustomerID       = errors.New("invalid customer id")
	ErrInvalidStoreID          = errors.New("invalid store id")
	ErrInvalidActor            = errors.New("invalid actor")
	ErrInvalidEntryID          = errors.New("invalid entry id")
	ErrInvalidSaleID           = errors.New("invalid sale id")
	ErrInvalidIdempotencyKey   = errors.New("invalid idempotency key")
	ErrInvalidMetadataJSON     = errors.New("invalid metadata json")
	ErrInvalidOperation        = errors.New("invalid operation")
	ErrInvalidAccountType      = errors.New("invalid account type")
	ErrInvalidTransactionType  = errors.New("invalid transaction type")
	ErrInvalidPaymentType      = errors.New("invalid payment type")
	ErrInvalidSplit            = errors.New("invalid split payment")
	ErrInvalidDateRange        = errors.New("invalid date range")
	ErrInvalidEntry            = errors.New("invalid ledger entry")
	ErrInvalidBalance          = errors.New("invalid balance")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAccountNotCredit        = errors.New("account is not a credit account")
	ErrAccountTypeTransition   = errors.New("account type transition not allowed")
	ErrUnknownCustomer         = errors.New("unknown customer")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
	ErrCreditLimitExceeded     = errors.New("credit limit exceeded")
	ErrConcurrencyConflict     = errors.New("concurrency conflict")
	ErrLockTimeout             = errors.New("account lock timeout")
	ErrOperationCanceled       = errors.New("operation canceled")
	ErrPersistence             = errors.New("persistence failure")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrImmutableEntry          = errors.New("ledger entries are immutable")
	ErrReplayMismatch          = errors.New("ledger replay mismatch")
)

// ErrorKind groups errors by what the caller should do about them.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindValidation          ErrorKind = "validation"
	KindCreditLimitExceeded ErrorKind = "credit_limit_exceeded"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
	KindDuplicate           ErrorKind = "duplicate"
	KindPersistence         ErrorKind = "persistence"
	KindCanceled            ErrorKind = "canceled"
	KindInternal            ErrorKind = "internal"
)

var validationErrors = []error{
	ErrInvalidAmount,
	ErrInvalidCustomerID,
	ErrInvalidStoreID,
	ErrInvalidActor,
	ErrInvalidEntryID,
	ErrInvalidSaleID,
	ErrInvalidIdempotencyKey,
	ErrInvalidMetadataJSON,
	ErrInvalidOperation,
	ErrInvalidAccountType,
	ErrInvalidTransactionType,
	ErrInvalidPaymentType,
	ErrInvalidSplit,
	ErrInvalidDateRange,
	ErrInvalidBalance,
	ErrInsufficientFunds,
	ErrAccountNotCredit,
	ErrAccountTypeTransition,
	ErrUnknownCustomer,
}

// Classify maps an error onto its ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrCreditLimitExceeded) {
		return KindCreditLimitExceeded
	}
	if errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrLockTimeout) {
		return KindConcurrencyConflict
	}
	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		return KindDuplicate
	}
	if errors.Is(err, ErrOperationCanceled) {
		return KindCanceled
	}
	for _, candidate := range validationErrors {
		if errors.Is(err, candidate) {
			return KindValidation
		}
	}
	if errors.Is(err, ErrPersistence) {
		return KindPersistence
	}
	return KindInternal
}

// IsRetryable reports whether the whole operation may be retried as-is.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case KindConcurrencyConflict, KindPersistence, KindCanceled:
		return true
	default:
		return false
	}
}

// CreditLimitError describes a rejected charge against a credit limit.
type CreditLimitError struct {
	Limit     AmountCents
	Attempted AmountCents
}

// Overage is the amount by which the attempted usage exceeds the limit.
func (limitError *CreditLimitError) Overage() AmountCents {
	if limitError.Attempted <= limitError.Limit {
		return 0
	}
	return limitError.Attempted - limitError.Limit
}

func (limitError *CreditLimitError) Error() string {
	return fmt.Sprintf("%v: limit %s, attempted usage %s (over by %s)",
		ErrCreditLimitExceeded, limitError.Limit, limitError.Attempted, limitError.Overage())
}

// Is matches ErrCreditLimitExceeded.
func (limitError *CreditLimitError) Is(target error) bool {
	return target == ErrCreditLimitExceeded
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// PersistenceError marks an infrastructure failure as ErrPersistence while keeping the cause.
func PersistenceError(operation string, subject string, code string, cause error) error {
	if cause == nil {
		return nil
	}
	return WrapError(operation, subject, code, fmt.Errorf("%w: %w", ErrPersistence, cause))
}

// lockError reports a wait that ran out of lockCtx time as ErrLockTimeout; when
// the caller's own context is done the operation counts as canceled instead.
func lockError(parent context.Context, err error) error {
	if cause := parent.Err(); cause != nil {
		return WrapError(errorOperationService, errorSubjectLock, errorCodeCanceled, fmt.Errorf("%w: %w", ErrOperationCanceled, cause))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(errorOperationService, errorSubjectLock, errorCodeTimeout, ErrLockTimeout)
	}
	return WrapError(errorOperationService, errorSubjectLock, errorCodeCanceled, fmt.Errorf("%w: %w", ErrOperationCanceled, err))
}

// transactionError attributes a store failure to the transaction deadline when
// txCtx expired first. Domain rejections pass through unchanged.
func transactionError(parent context.Context, txCtx context.Context, err error) error {
	if errors.Is(err, ErrLockTimeout) || txCtx.Err() == nil {
		return err
	}
	switch Classify(err) {
	case KindPersistence, KindCanceled, KindInternal:
	default:
		return err
	}
	if cause := parent.Err(); cause != nil {
		return WrapError(errorOperationService, errorSubjectTransaction, errorCodeCanceled, fmt.Errorf("%w: %w", ErrOperationCanceled, cause))
	}
	return WrapError(errorOperationService, errorSubjectTransaction, errorCodeTimeout, fmt.Errorf("%w: %w", ErrLockTimeout, err))
}
