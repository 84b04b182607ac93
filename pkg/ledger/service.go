package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service owns every mutation of customer accounts and their ledger.
type Service struct {
	store       Store
	clock       func() time.Time
	logger      OperationLogger
	locks       *customerLocks
	lockTimeout time.Duration
	location    *time.Location
	newEntryID  func() string
}

// NewService wires a Service.
func NewService(store Store, clock func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if clock == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:       store,
		clock:       clock,
		locks:       newCustomerLocks(),
		lockTimeout: defaultLockTimeout,
		location:    time.UTC,
		newEntryID:  uuid.NewString,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// PaymentRequest asks for money to be added to or excluded from an account.
type PaymentRequest struct {
	CustomerID     CustomerID
	Operation      Operation
	Amount         PositiveAmountCents
	PaymentType    PaymentType
	Note           string
	Slip           string
	IdempotencyKey *IdempotencyKey
	Metadata       MetadataJSON
}

// SaleRequest records a completed sale. Only the credit portion touches the account.
type SaleRequest struct {
	CustomerID     CustomerID
	SaleID         SaleID
	Total          PositiveAmountCents
	PaymentType    PaymentType
	Note           string
	Slip           string
	IdempotencyKey *IdempotencyKey
	Metadata       MetadataJSON
}

// Result is the committed account together with the entry that recorded the change.
type Result struct {
	Account AccountRecord
	Entry   Entry
}

// change is what a mutation decided from the locked account state.
type change struct {
	next            AccountState
	transactionType TransactionType
	paymentType     PaymentType
	cashAmount      AmountCents
	creditAmount    AmountCents
	note            string
}

type mutation struct {
	operation      string
	customerID     CustomerID
	actor          Actor
	amount         AmountCents
	slip           string
	saleID         *SaleID
	idempotencyKey *IdempotencyKey
	metadata       MetadataJSON
	apply          func(current AccountState) (change, error)
}

// Account returns the committed account of a customer.
func (service *Service) Account(ctx context.Context, customerID CustomerID) (AccountRecord, error) {
	if customerID.String() == "" {
		return AccountRecord{}, fmt.Errorf("%w: empty value", ErrInvalidCustomerID)
	}
	return service.store.GetAccount(ctx, customerID)
}

// ProcessPayment applies an add or exclude to the customer's account.
func (service *Service) ProcessPayment(ctx context.Context, request PaymentRequest, actor Actor) (Result, error) {
	paymentType := request.PaymentType
	if paymentType == nil {
		paymentType = CashPayment{}
	}
	validationErr := validatePaymentRequest(request, paymentType)
	return service.commit(ctx, mutation{
		operation:      operationProcessPayment,
		customerID:     request.CustomerID,
		actor:          actor,
		amount:         request.Amount.ToAmountCents(),
		slip:           request.Slip,
		idempotencyKey: request.IdempotencyKey,
		metadata:       request.Metadata,
		apply: func(current AccountState) (change, error) {
			allocation, err := Allocate(current, request.Operation, request.Amount)
			if err != nil {
				return change{}, err
			}
			cashAmount, creditAmount, err := paymentType.Portions(request.Amount.ToAmountCents())
			if err != nil {
				return change{}, err
			}
			return change{
				next:            allocation.Next,
				transactionType: request.Operation.transactionType(),
				paymentType:     paymentType,
				cashAmount:      cashAmount,
				creditAmount:    creditAmount,
				note:            composeNote(allocation.Note, request.Note),
			}, nil
		},
	}, validationErr)
}

// RecordSale charges the credit portion of a sale and records the cash portion.
func (service *Service) RecordSale(ctx context.Context, request SaleRequest, actor Actor) (Result, error) {
	validationErr := validateSaleRequest(request)
	return service.commit(ctx, mutation{
		operation:      operationRecordSale,
		customerID:     request.CustomerID,
		actor:          actor,
		amount:         request.Total.ToAmountCents(),
		slip:           request.Slip,
		saleID:         &request.SaleID,
		idempotencyKey: request.IdempotencyKey,
		metadata:       request.Metadata,
		apply: func(current AccountState) (change, error) {
			cashAmount, creditAmount, err := request.PaymentType.Portions(request.Total.ToAmountCents())
			if err != nil {
				return change{}, err
			}
			saleChange := change{
				next:            current,
				transactionType: TransactionSale,
				paymentType:     request.PaymentType,
				cashAmount:      cashAmount,
				creditAmount:    creditAmount,
			}
			derivation := fmt.Sprintf("sale %s of %s paid %s in cash", request.SaleID, request.Total, cashAmount)
			if creditAmount > 0 {
				allocation, err := Allocate(current, OperationExclude, PositiveAmountCents(creditAmount))
				if err != nil {
					return change{}, err
				}
				saleChange.next = allocation.Next
				derivation = fmt.Sprintf("sale %s of %s paid %s in cash; %s", request.SaleID, request.Total, cashAmount, allocation.Note)
			}
			saleChange.note = composeNote(derivation, request.Note)
			return saleChange, nil
		},
	}, validationErr)
}

// UpdateCreditLimit sets a new limit on a credit account.
func (service *Service) UpdateCreditLimit(ctx context.Context, customerID CustomerID, newLimit AmountCents, actor Actor) (Result, error) {
	var validationErr error
	if newLimit < 0 {
		validationErr = fmt.Errorf("%w: limit must not be negative", ErrInvalidAmount)
	}
	return service.commit(ctx, mutation{
		operation:  operationUpdateLimit,
		customerID: customerID,
		actor:      actor,
		amount:     newLimit,
		apply: func(current AccountState) (change, error) {
			next, err := current.WithLimit(newLimit)
			if err != nil {
				return change{}, err
			}
			return change{
				next:            next,
				transactionType: TransactionCreditLimitChanged,
				paymentType:     NoPayment{},
				note:            fmt.Sprintf("credit limit changed from %s to %s", current.Limit, newLimit),
			}, nil
		},
	}, validationErr)
}

// ConvertToCredit turns a cash account into a credit account with the given limit.
func (service *Service) ConvertToCredit(ctx context.Context, customerID CustomerID, limit AmountCents, actor Actor) (Result, error) {
	var validationErr error
	if limit < 0 {
		validationErr = fmt.Errorf("%w: limit must not be negative", ErrInvalidAmount)
	}
	return service.commit(ctx, mutation{
		operation:  operationConvertCredit,
		customerID: customerID,
		actor:      actor,
		amount:     limit,
		apply: func(current AccountState) (change, error) {
			next, err := current.ConvertToCredit(limit)
			if err != nil {
				return change{}, err
			}
			return change{
				next:            next,
				transactionType: TransactionCreditLimitChanged,
				paymentType:     NoPayment{},
				note:            fmt.Sprintf("account converted from cash to credit with limit %s", limit),
			}, nil
		},
	}, validationErr)
}

// commit runs one mutation under the customer's lock and a single store transaction.
func (service *Service) commit(ctx context.Context, request mutation, validationErr error) (Result, error) {
	startedAt := service.clock()
	result, operationError := service.run(ctx, request, validationErr)
	service.logOperation(ctx, OperationLog{
		Operation:  request.operation,
		CustomerID: request.customerID,
		Actor:      request.actor,
		Amount:     request.amount,
		EntryID:    result.Entry.EntryID(),
		Error:      operationError,
		Duration:   service.clock().Sub(startedAt),
	})
	if operationError != nil {
		return Result{}, operationError
	}
	return result, nil
}

func (service *Service) run(ctx context.Context, request mutation, validationErr error) (Result, error) {
	if validationErr != nil {
		return Result{}, validationErr
	}
	if request.customerID.String() == "" {
		return Result{}, fmt.Errorf("%w: empty value", ErrInvalidCustomerID)
	}
	if err := request.actor.validate(); err != nil {
		return Result{}, err
	}
	entryID, err := NewEntryID(service.newEntryID())
	if err != nil {
		return Result{}, err
	}

	release, err := service.locks.acquire(ctx, service.lockTimeout, request.customerID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	// The store transaction gets the same budget, which bounds row locks and pool waits.
	txCtx, cancel := context.WithTimeout(ctx, service.lockTimeout)
	defer cancel()

	var result Result
	err = service.store.WithTx(txCtx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.LockAccount(ctx, request.customerID)
		if err != nil {
			return err
		}
		decided, err := request.apply(current.State)
		if err != nil {
			return err
		}
		updated, err := txStore.UpdateAccount(ctx, request.customerID, current.Version, decided.next)
		if err != nil {
			return err
		}
		previous := current.State.NetPosition()
		remaining := updated.State.NetPosition()
		entry, err := NewEntry(EntryInput{
			EntryID:          entryID,
			CustomerID:       request.customerID,
			Sequence:         updated.Version,
			TransactionType:  decided.transactionType,
			PaymentType:      decided.paymentType,
			PreviousBalance:  previous,
			Amount:           remaining - previous,
			RemainingBalance: remaining,
			CashAmount:       decided.cashAmount,
			CreditAmount:     decided.creditAmount,
			AccountType:      updated.State.Type,
			CreditLimit:      updated.State.Limit,
			Date:             service.clock(),
			StoreID:          request.actor.StoreID,
			AddedBy:          request.actor.ID,
			Note:             decided.note,
			SaleID:           request.saleID,
			Slip:             strings.TrimSpace(request.slip),
			IdempotencyKey:   request.idempotencyKey,
			Metadata:         request.metadata,
		})
		if err != nil {
			return err
		}
		if err := txStore.InsertEntry(ctx, entry); err != nil {
			return err
		}
		result = Result{Account: updated, Entry: entry}
		return nil
	})
	if err != nil {
		return Result{}, transactionError(ctx, txCtx, err)
	}
	return result, nil
}

func validatePaymentRequest(request PaymentRequest, paymentType PaymentType) error {
	if _, err := ParseOperation(request.Operation.String()); err != nil {
		return err
	}
	if request.Amount <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if paymentType.Kind() == PaymentKindNone {
		return fmt.Errorf("%w: payments need a tender", ErrInvalidPaymentType)
	}
	if _, _, err := paymentType.Portions(request.Amount.ToAmountCents()); err != nil {
		return err
	}
	return nil
}

func validateSaleRequest(request SaleRequest) error {
	if request.SaleID.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidSaleID)
	}
	if request.Total <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if request.PaymentType == nil || request.PaymentType.Kind() == PaymentKindNone {
		return fmt.Errorf("%w: sales need a tender", ErrInvalidPaymentType)
	}
	if _, _, err := request.PaymentType.Portions(request.Total.ToAmountCents()); err != nil {
		return err
	}
	return nil
}

func composeNote(derivation string, userNote string) string {
	trimmed := strings.TrimSpace(userNote)
	if trimmed == "" {
		return derivation
	}
	return derivation + "; " + trimmed
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	entry.Kind = Classify(entry.Error)
	service.logger.LogOperation(ctx, entry)
}
