package ledger

import (
	"fmt"
	"strings"
)

// PaymentKind names how a transaction was tendered.
type PaymentKind string

const (
	PaymentKindCash   PaymentKind = "cash"
	PaymentKindCredit PaymentKind = "credit"
	PaymentKindSplit  PaymentKind = "split"
	PaymentKindNone   PaymentKind = "none"
)

// ParsePaymentKind validates a payment kind string.
func ParsePaymentKind(raw string) (PaymentKind, error) {
	switch PaymentKind(strings.ToLower(strings.TrimSpace(raw))) {
	case PaymentKindCash:
		return PaymentKindCash, nil
	case PaymentKindCredit:
		return PaymentKindCredit, nil
	case PaymentKindSplit:
		return PaymentKindSplit, nil
	case PaymentKindNone, "":
		return PaymentKindNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentType, raw)
	}
}

// String returns the kind value.
func (kind PaymentKind) String() string { return string(kind) }

// PaymentType is one of CashPayment, CreditPayment, SplitPayment or NoPayment.
type PaymentType interface {
	Kind() PaymentKind
	// Portions splits total into its cash and credit parts.
	Portions(total AmountCents) (cash AmountCents, credit AmountCents, err error)
	paymentType()
}

// CashPayment is a transaction settled in cash.
type CashPayment struct{}

// CreditPayment is a transaction settled against the customer's account.
type CreditPayment struct{}

// SplitPayment is a transaction settled partly in cash and partly on account.
type SplitPayment struct {
	CashAmount   AmountCents
	CreditAmount AmountCents
}

// NoPayment marks events that move no money, such as limit changes.
type NoPayment struct{}

func (CashPayment) Kind() PaymentKind   { return PaymentKindCash }
func (CreditPayment) Kind() PaymentKind { return PaymentKindCredit }
func (SplitPayment) Kind() PaymentKind  { return PaymentKindSplit }
func (NoPayment) Kind() PaymentKind     { return PaymentKindNone }

func (CashPayment) Portions(total AmountCents) (AmountCents, AmountCents, error) {
	return total, 0, nil
}

func (CreditPayment) Portions(total AmountCents) (AmountCents, AmountCents, error) {
	return 0, total, nil
}

func (payment SplitPayment) Portions(total AmountCents) (AmountCents, AmountCents, error) {
	if payment.CashAmount+payment.CreditAmount != total {
		return 0, 0, fmt.Errorf("%w: cash %s + credit %s does not equal %s",
			ErrInvalidSplit, payment.CashAmount, payment.CreditAmount, total)
	}
	return payment.CashAmount, payment.CreditAmount, nil
}

func (NoPayment) Portions(total AmountCents) (AmountCents, AmountCents, error) {
	return 0, 0, nil
}

func (CashPayment) paymentType()   {}
func (CreditPayment) paymentType() {}
func (SplitPayment) paymentType()  {}
func (NoPayment) paymentType()     {}

// NewSplitPayment validates both portions of a split.
func NewSplitPayment(cashCents int64, creditCents int64) (SplitPayment, error) {
	cash, err := NewAmountCents(cashCents)
	if err != nil {
		return SplitPayment{}, fmt.Errorf("%w: cash portion: %w", ErrInvalidSplit, err)
	}
	credit, err := NewAmountCents(creditCents)
	if err != nil {
		return SplitPayment{}, fmt.Errorf("%w: credit portion: %w", ErrInvalidSplit, err)
	}
	if cash == 0 || credit == 0 {
		return SplitPayment{}, fmt.Errorf("%w: both portions must be positive", ErrInvalidSplit)
	}
	return SplitPayment{CashAmount: cash, CreditAmount: credit}, nil
}

// NewPaymentType rebuilds a payment variant from its kind and split columns.
func NewPaymentType(kind PaymentKind, cashCents int64, creditCents int64) (PaymentType, error) {
	switch kind {
	case PaymentKindCash:
		return CashPayment{}, nil
	case PaymentKindCredit:
		return CreditPayment{}, nil
	case PaymentKindSplit:
		return NewSplitPayment(cashCents, creditCents)
	case PaymentKindNone:
		return NoPayment{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentType, kind)
	}
}
