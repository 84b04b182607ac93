package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountCents is a non-negative currency amount in cents.
type AmountCents int64

// PositiveAmountCents is a strictly positive currency amount in cents.
type PositiveAmountCents int64

// SignedAmountCents is a signed delta or net position in cents.
type SignedAmountCents int64

// NewAmountCents validates a non-negative amount.
func NewAmountCents(raw int64) (AmountCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return AmountCents(raw), nil
}

// NewPositiveAmountCents validates an amount and ensures it is strictly positive.
func NewPositiveAmountCents(raw int64) (PositiveAmountCents, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return PositiveAmountCents(raw), nil
}

// Int64 returns the raw cents.
func (amount AmountCents) Int64() int64 { return int64(amount) }

// Signed converts to a signed amount.
func (amount AmountCents) Signed() SignedAmountCents { return SignedAmountCents(amount) }

// Decimal returns the amount in currency units.
func (amount AmountCents) Decimal() decimal.Decimal { return centsToDecimal(int64(amount)) }

func (amount AmountCents) String() string { return formatCents(int64(amount)) }

// Int64 returns the raw cents.
func (amount PositiveAmountCents) Int64() int64 { return int64(amount) }

// ToAmountCents drops the positivity guarantee.
func (amount PositiveAmountCents) ToAmountCents() AmountCents { return AmountCents(amount) }

// Decimal returns the amount in currency units.
func (amount PositiveAmountCents) Decimal() decimal.Decimal { return centsToDecimal(int64(amount)) }

func (amount PositiveAmountCents) String() string { return formatCents(int64(amount)) }

// Int64 returns the raw cents.
func (amount SignedAmountCents) Int64() int64 { return int64(amount) }

// Negated flips the sign.
func (amount SignedAmountCents) Negated() SignedAmountCents { return -amount }

// Abs returns the magnitude.
func (amount SignedAmountCents) Abs() AmountCents {
	if amount < 0 {
		return AmountCents(-amount)
	}
	return AmountCents(amount)
}

// Decimal returns the amount in currency units.
func (amount SignedAmountCents) Decimal() decimal.Decimal { return centsToDecimal(int64(amount)) }

func (amount SignedAmountCents) String() string { return formatCents(int64(amount)) }

func centsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -amountDecimalPlace)
}

func formatCents(cents int64) string {
	return centsToDecimal(cents).StringFixed(amountDecimalPlace)
}

// CentsFromDecimal converts a currency amount with at most two fractional digits into cents.
func CentsFromDecimal(value decimal.Decimal) (int64, error) {
	shifted := value.Shift(amountDecimalPlace)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: at most %d fractional digits", ErrInvalidAmount, amountDecimalPlace)
	}
	if !shifted.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: out of range", ErrInvalidAmount)
	}
	return shifted.IntPart(), nil
}

// CustomerID identifies the customer owning an account.
type CustomerID struct {
	value string
}

// StoreID identifies the store where an event was recorded.
type StoreID struct {
	value string
}

// ActorID identifies the staff member performing an operation.
type ActorID struct {
	value string
}

// EntryID identifies a ledger entry.
type EntryID struct {
	value string
}

// SaleID links an entry to a sale in the sale subsystem.
type SaleID struct {
	value string
}

// IdempotencyKey scopes duplicate detection per customer.
type IdempotencyKey struct {
	value string
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewCustomerID validates and normalizes a customer id.
func NewCustomerID(raw string) (CustomerID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CustomerID{}, fmt.Errorf("%w: empty value", ErrInvalidCustomerID)
	}
	return CustomerID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CustomerID) String() string { return id.value }

// NewStoreID validates and normalizes a store id.
func NewStoreID(raw string) (StoreID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StoreID{}, fmt.Errorf("%w: empty value", ErrInvalidStoreID)
	}
	return StoreID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id StoreID) String() string { return id.value }

// NewActorID validates and normalizes an actor id.
func NewActorID(raw string) (ActorID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ActorID{}, fmt.Errorf("%w: empty id", ErrInvalidActor)
	}
	return ActorID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ActorID) String() string { return id.value }

// NewEntryID validates and normalizes an entry id.
func NewEntryID(raw string) (EntryID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return EntryID{}, fmt.Errorf("%w: empty value", ErrInvalidEntryID)
	}
	return EntryID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id EntryID) String() string { return id.value }

// NewSaleID validates and normalizes a sale id.
func NewSaleID(raw string) (SaleID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SaleID{}, fmt.Errorf("%w: empty value", ErrInvalidSaleID)
	}
	return SaleID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id SaleID) String() string { return id.value }

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string { return key.value }

// NewMetadataJSON validates metadata string (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	if metadata.value == "" {
		return "{}"
	}
	return metadata.value
}

// Actor is the authenticated staff identity attached to every request.
type Actor struct {
	ID      ActorID
	Role    string
	StoreID StoreID
}

// NewActor validates an actor supplied by the identity layer.
func NewActor(rawID string, role string, rawStoreID string) (Actor, error) {
	actorID, err := NewActorID(rawID)
	if err != nil {
		return Actor{}, err
	}
	storeID, err := NewStoreID(rawStoreID)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %w", ErrInvalidActor, err)
	}
	return Actor{ID: actorID, Role: strings.TrimSpace(role), StoreID: storeID}, nil
}

func (actor Actor) validate() error {
	if actor.ID.String() == "" || actor.StoreID.String() == "" {
		return fmt.Errorf("%w: missing identity", ErrInvalidActor)
	}
	return nil
}

// AccountType is the kind of customer account.
type AccountType string

const (
	AccountTypeCash   AccountType = "cash"
	AccountTypeCredit AccountType = "credit"
)

// ParseAccountType validates an account type string.
func ParseAccountType(raw string) (AccountType, error) {
	switch AccountType(strings.ToLower(strings.TrimSpace(raw))) {
	case AccountTypeCash:
		return AccountTypeCash, nil
	case AccountTypeCredit:
		return AccountTypeCredit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAccountType, raw)
	}
}

// String returns the account type value.
func (accountType AccountType) String() string { return string(accountType) }

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	TransactionSale               TransactionType = "sale"
	TransactionBalanceAdded       TransactionType = "balance-added"
	TransactionBalanceExcluded    TransactionType = "balance-excluded"
	TransactionCreditLimitChanged TransactionType = "credit-limit-changed"
)

// ParseTransactionType validates a transaction type string.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(strings.TrimSpace(raw)) {
	case TransactionSale:
		return TransactionSale, nil
	case TransactionBalanceAdded:
		return TransactionBalanceAdded, nil
	case TransactionBalanceExcluded:
		return TransactionBalanceExcluded, nil
	case TransactionCreditLimitChanged:
		return TransactionCreditLimitChanged, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
	}
}

// String returns the transaction type value.
func (transactionType TransactionType) String() string { return string(transactionType) }

// Operation is a requested change to a customer's funds.
type Operation string

const (
	// OperationAdd records money paid in by the customer.
	OperationAdd Operation = "add"
	// OperationExclude records a charge against the customer.
	OperationExclude Operation = "exclude"
)

// ParseOperation validates an operation string.
func ParseOperation(raw string) (Operation, error) {
	switch Operation(strings.ToLower(strings.TrimSpace(raw))) {
	case OperationAdd:
		return OperationAdd, nil
	case OperationExclude:
		return OperationExclude, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperation, raw)
	}
}

// String returns the operation value.
func (operation Operation) String() string { return string(operation) }

func (operation Operation) transactionType() TransactionType {
	if operation == OperationAdd {
		return TransactionBalanceAdded
	}
	return TransactionBalanceExcluded
}
