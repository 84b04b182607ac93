package ledger

import (
	"fmt"
	"strings"
)

// Allocation is the outcome of applying one add or exclude to an account.
// Nothing is committed; the coordinator persists Next.
type Allocation struct {
	Operation      Operation
	Amount         PositiveAmountCents
	Previous       AccountState
	Next           AccountState
	DebtCleared    AmountCents
	AddedToBalance AmountCents
	FromBalance    AmountCents
	AddedToCredit  AmountCents
	Note           string
}

// NetDelta is the signed change to the net position.
func (allocation Allocation) NetDelta() SignedAmountCents {
	return allocation.Next.NetPosition() - allocation.Previous.NetPosition()
}

// Allocate distributes amount between debt and balance.
//
// add clears outstanding used amount first and credits the rest to balance.
// exclude draws on balance first and charges the rest to the credit line; the
// whole charge is rejected when it does not fit.
func Allocate(state AccountState, operation Operation, amount PositiveAmountCents) (Allocation, error) {
	if amount <= 0 {
		return Allocation{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	switch operation {
	case OperationAdd:
		return allocateAdd(state, amount)
	case OperationExclude:
		return allocateExclude(state, amount)
	default:
		return Allocation{}, fmt.Errorf("%w: %q", ErrInvalidOperation, operation)
	}
}

func allocateAdd(state AccountState, amount PositiveAmountCents) (Allocation, error) {
	requested := amount.ToAmountCents()
	debtCleared := minAmount(requested, state.UsedAmount)
	addedToBalance := requested - debtCleared
	next, err := ApplyDelta(state, addedToBalance.Signed(), debtCleared.Signed().Negated())
	if err != nil {
		return Allocation{}, err
	}
	allocation := Allocation{
		Operation:      OperationAdd,
		Amount:         amount,
		Previous:       state,
		Next:           next,
		DebtCleared:    debtCleared,
		AddedToBalance: addedToBalance,
	}
	allocation.Note = describeAllocation(allocation)
	return allocation, nil
}

func allocateExclude(state AccountState, amount PositiveAmountCents) (Allocation, error) {
	requested := amount.ToAmountCents()
	fromBalance := minAmount(requested, state.Balance)
	addedToCredit := requested - fromBalance
	if addedToCredit > 0 && state.Type != AccountTypeCredit {
		return Allocation{}, fmt.Errorf("%w: cash account balance %s cannot cover %s",
			ErrInsufficientFunds, state.Balance, requested)
	}
	next, err := ApplyDelta(state, fromBalance.Signed().Negated(), addedToCredit.Signed())
	if err != nil {
		return Allocation{}, err
	}
	allocation := Allocation{
		Operation:     OperationExclude,
		Amount:        amount,
		Previous:      state,
		Next:          next,
		FromBalance:   fromBalance,
		AddedToCredit: addedToCredit,
	}
	allocation.Note = describeAllocation(allocation)
	return allocation, nil
}

func describeAllocation(allocation Allocation) string {
	var builder strings.Builder
	switch allocation.Operation {
	case OperationAdd:
		fmt.Fprintf(&builder, "payment of %s", allocation.Amount)
		parts := make([]string, 0, 2)
		if allocation.DebtCleared > 0 {
			parts = append(parts, fmt.Sprintf("cleared %s of credit used", allocation.DebtCleared))
		}
		if allocation.AddedToBalance > 0 {
			parts = append(parts, fmt.Sprintf("added %s to balance", allocation.AddedToBalance))
		}
		builder.WriteString(" " + strings.Join(parts, " and "))
	case OperationExclude:
		fmt.Fprintf(&builder, "charge of %s", allocation.Amount)
		parts := make([]string, 0, 2)
		if allocation.FromBalance > 0 {
			parts = append(parts, fmt.Sprintf("drew %s from balance", allocation.FromBalance))
		}
		if allocation.AddedToCredit > 0 {
			parts = append(parts, fmt.Sprintf("added %s to credit used", allocation.AddedToCredit))
		}
		builder.WriteString(" " + strings.Join(parts, " and "))
	}
	fmt.Fprintf(&builder, "; net position %s -> %s", allocation.Previous.NetPosition(), allocation.Next.NetPosition())
	return builder.String()
}

func minAmount(left AmountCents, right AmountCents) AmountCents {
	if left < right {
		return left
	}
	return right
}
