package ledger

import (
	"fmt"
	"time"
)

// EntryInput carries the fields of a ledger entry before validation.
type EntryInput struct {
	EntryID          EntryID
	CustomerID       CustomerID
	Sequence         int64
	TransactionType  TransactionType
	PaymentType      PaymentType
	PreviousBalance  SignedAmountCents
	Amount           SignedAmountCents
	RemainingBalance SignedAmountCents
	CashAmount       AmountCents
	CreditAmount     AmountCents
	AccountType      AccountType
	CreditLimit      AmountCents
	Date             time.Time
	StoreID          StoreID
	AddedBy          ActorID
	Note             string
	SaleID           *SaleID
	Slip             string
	IdempotencyKey   *IdempotencyKey
	Metadata         MetadataJSON
}

// Entry is a single immutable line in the ledger.
type Entry struct {
	entryID          EntryID
	customerID       CustomerID
	sequence         int64
	transactionType  TransactionType
	paymentType      PaymentType
	previousBalance  SignedAmountCents
	amount           SignedAmountCents
	remainingBalance SignedAmountCents
	cashAmount       AmountCents
	creditAmount     AmountCents
	accountType      AccountType
	creditLimit      AmountCents
	date             time.Time
	storeID          StoreID
	addedBy          ActorID
	note             string
	saleID           *SaleID
	slip             string
	idempotencyKey   *IdempotencyKey
	metadata         MetadataJSON
}

// NewEntry validates an entry input.
func NewEntry(input EntryInput) (Entry, error) {
	if input.EntryID.String() == "" {
		return Entry{}, fmt.Errorf("%w: missing entry id", ErrInvalidEntry)
	}
	if input.CustomerID.String() == "" {
		return Entry{}, fmt.Errorf("%w: missing customer id", ErrInvalidEntry)
	}
	if input.Sequence <= 0 {
		return Entry{}, fmt.Errorf("%w: sequence must be positive", ErrInvalidEntry)
	}
	if _, err := ParseTransactionType(input.TransactionType.String()); err != nil {
		return Entry{}, err
	}
	if _, err := ParseAccountType(input.AccountType.String()); err != nil {
		return Entry{}, err
	}
	if input.PaymentType == nil {
		return Entry{}, fmt.Errorf("%w: missing payment type", ErrInvalidEntry)
	}
	if input.PreviousBalance+input.Amount != input.RemainingBalance {
		return Entry{}, fmt.Errorf("%w: %s + %s != %s", ErrInvalidEntry,
			input.PreviousBalance, input.Amount, input.RemainingBalance)
	}
	if input.CashAmount < 0 || input.CreditAmount < 0 || input.CreditLimit < 0 {
		return Entry{}, fmt.Errorf("%w: negative amount column", ErrInvalidEntry)
	}
	if input.Date.IsZero() {
		return Entry{}, fmt.Errorf("%w: missing date", ErrInvalidEntry)
	}
	if input.StoreID.String() == "" || input.AddedBy.String() == "" {
		return Entry{}, fmt.Errorf("%w: missing store or actor", ErrInvalidEntry)
	}
	return Entry{
		entryID:          input.EntryID,
		customerID:       input.CustomerID,
		sequence:         input.Sequence,
		transactionType:  input.TransactionType,
		paymentType:      input.PaymentType,
		previousBalance:  input.PreviousBalance,
		amount:           input.Amount,
		remainingBalance: input.RemainingBalance,
		cashAmount:       input.CashAmount,
		creditAmount:     input.CreditAmount,
		accountType:      input.AccountType,
		creditLimit:      input.CreditLimit,
		date:             input.Date.UTC(),
		storeID:          input.StoreID,
		addedBy:          input.AddedBy,
		note:             input.Note,
		saleID:           copySaleID(input.SaleID),
		slip:             input.Slip,
		idempotencyKey:   copyIdempotencyKey(input.IdempotencyKey),
		metadata:         input.Metadata,
	}, nil
}

func (entry Entry) EntryID() EntryID                    { return entry.entryID }
func (entry Entry) CustomerID() CustomerID              { return entry.customerID }
func (entry Entry) Sequence() int64                     { return entry.sequence }
func (entry Entry) TransactionType() TransactionType    { return entry.transactionType }
func (entry Entry) PaymentType() PaymentType            { return entry.paymentType }
func (entry Entry) PreviousBalance() SignedAmountCents  { return entry.previousBalance }
func (entry Entry) Amount() SignedAmountCents           { return entry.amount }
func (entry Entry) RemainingBalance() SignedAmountCents { return entry.remainingBalance }
func (entry Entry) CashAmount() AmountCents             { return entry.cashAmount }
func (entry Entry) CreditAmount() AmountCents           { return entry.creditAmount }
func (entry Entry) AccountType() AccountType            { return entry.accountType }
func (entry Entry) CreditLimit() AmountCents            { return entry.creditLimit }
func (entry Entry) Date() time.Time                     { return entry.date }
func (entry Entry) StoreID() StoreID                    { return entry.storeID }
func (entry Entry) AddedBy() ActorID                    { return entry.addedBy }
func (entry Entry) Note() string                        { return entry.note }
func (entry Entry) Slip() string                        { return entry.slip }
func (entry Entry) Metadata() MetadataJSON              { return entry.metadata }

// SaleID returns the linked sale, if any.
func (entry Entry) SaleID() (SaleID, bool) {
	if entry.saleID == nil {
		return SaleID{}, false
	}
	return *entry.saleID, true
}

// IdempotencyKey returns the caller-supplied key, if any.
func (entry Entry) IdempotencyKey() (IdempotencyKey, bool) {
	if entry.idempotencyKey == nil {
		return IdempotencyKey{}, false
	}
	return *entry.idempotencyKey, true
}

func copySaleID(source *SaleID) *SaleID {
	if source == nil {
		return nil
	}
	value := *source
	return &value
}

func copyIdempotencyKey(source *IdempotencyKey) *IdempotencyKey {
	if source == nil {
		return nil
	}
	value := *source
	return &value
}
