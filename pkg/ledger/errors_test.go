package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

const (
	operationName    = "ledger"
	subjectName      = "entry"
	codeName         = "invalid"
	baseErrorMessage = "base error"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	baseError := errors.New(baseErrorMessage)
	wrappedError := WrapError(operationName, subjectName, codeName, baseError)
	if wrappedError == nil {
		test.Fatalf("expected wrapped error")
	}
	expected := operationName + "." + subjectName + "." + codeName + ": " + baseErrorMessage
	if wrappedError.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrappedError.Error())
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError(operationName, subjectName, codeName, nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}

func TestClassify(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name          string
		err           error
		wantKind      ErrorKind
		wantRetryable bool
	}{
		{name: "nil", err: nil, wantKind: KindNone},
		{name: "validation", err: fmt.Errorf("%w: bad", ErrInvalidAmount), wantKind: KindValidation},
		{name: "unknown customer", err: ErrUnknownCustomer, wantKind: KindValidation},
		{name: "invalid balance", err: fmt.Errorf("%w: overflow", ErrInvalidBalance), wantKind: KindValidation},
		{name: "credit limit", err: &CreditLimitError{Limit: 100, Attempted: 150}, wantKind: KindCreditLimitExceeded},
		{name: "conflict", err: WrapError("store", "account", "version", ErrConcurrencyConflict), wantKind: KindConcurrencyConflict, wantRetryable: true},
		{name: "lock timeout", err: lockError(context.Background(), context.DeadlineExceeded), wantKind: KindConcurrencyConflict, wantRetryable: true},
		{name: "canceled", err: lockError(context.Background(), context.Canceled), wantKind: KindCanceled, wantRetryable: true},
		{name: "duplicate", err: ErrDuplicateIdempotencyKey, wantKind: KindDuplicate},
		{name: "persistence", err: PersistenceError("store", "entry", "insert", errors.New("io")), wantKind: KindPersistence, wantRetryable: true},
		{name: "internal", err: errors.New(baseErrorMessage), wantKind: KindInternal},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if kind := Classify(testCase.err); kind != testCase.wantKind {
				test.Fatalf("expected %q, got %q", testCase.wantKind, kind)
			}
			if IsRetryable(testCase.err) != testCase.wantRetryable {
				test.Fatalf("expected retryable %t", testCase.wantRetryable)
			}
		})
	}
}

func TestLockErrorSeparatesCallerDeadline(test *testing.T) {
	test.Parallel()
	expired, cancel := context.WithDeadline(context.Background(), time.Unix(0, 0))
	defer cancel()

	err := lockError(expired, context.DeadlineExceeded)
	if errors.Is(err, ErrLockTimeout) {
		test.Fatalf("caller deadline reported as lock timeout: %v", err)
	}
	if !errors.Is(err, ErrOperationCanceled) || !errors.Is(err, context.DeadlineExceeded) {
		test.Fatalf("expected canceled operation carrying the deadline, got %v", err)
	}
	if Classify(err) != KindCanceled {
		test.Fatalf("expected canceled kind, got %q", Classify(err))
	}
}

func TestTransactionError(test *testing.T) {
	test.Parallel()
	live := context.Background()
	expired, cancel := context.WithDeadline(context.Background(), time.Unix(0, 0))
	defer cancel()
	storeFailure := PersistenceError("store", "account", "lock", context.DeadlineExceeded)
	limitFailure := &CreditLimitError{Limit: 100, Attempted: 150}

	testCases := []struct {
		name     string
		parent   context.Context
		txCtx    context.Context
		err      error
		wantKind ErrorKind
		wantIs   error
	}{
		{name: "live transaction keeps error", parent: live, txCtx: live, err: storeFailure, wantKind: KindPersistence, wantIs: ErrPersistence},
		{name: "expired transaction times out", parent: live, txCtx: expired, err: storeFailure, wantKind: KindConcurrencyConflict, wantIs: ErrLockTimeout},
		{name: "caller deadline cancels", parent: expired, txCtx: expired, err: storeFailure, wantKind: KindCanceled, wantIs: ErrOperationCanceled},
		{name: "domain rejection passes through", parent: live, txCtx: expired, err: limitFailure, wantKind: KindCreditLimitExceeded, wantIs: ErrCreditLimitExceeded},
		{name: "store lock timeout passes through", parent: live, txCtx: live, err: WrapError("store", "account", "lock_timeout", ErrLockTimeout), wantKind: KindConcurrencyConflict, wantIs: ErrLockTimeout},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			err := transactionError(testCase.parent, testCase.txCtx, testCase.err)
			if kind := Classify(err); kind != testCase.wantKind {
				test.Fatalf("expected %q, got %q (%v)", testCase.wantKind, kind, err)
			}
			if !errors.Is(err, testCase.wantIs) {
				test.Fatalf("expected %v in %v", testCase.wantIs, err)
			}
		})
	}
}

func TestPersistenceErrorKeepsCause(test *testing.T) {
	test.Parallel()
	cause := errors.New("connection reset")
	err := PersistenceError("store", "account", "update", cause)
	if !errors.Is(err, cause) || !errors.Is(err, ErrPersistence) {
		test.Fatalf("expected cause and sentinel in %v", err)
	}
	var operationError OperationError
	if !errors.As(err, &operationError) || operationError.Code() != "update" {
		test.Fatalf("expected operation error, got %v", err)
	}
}
