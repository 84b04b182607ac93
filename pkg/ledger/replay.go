package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Replay rebuilds an account from its entries, oldest first, starting from a zero cash account.
// Every entry is re-derived with the allocator and must match what was recorded.
func Replay(entries []Entry) (AccountState, error) {
	state := NewCashAccount()
	var lastSequence int64
	for _, entry := range entries {
		if entry.Sequence() <= lastSequence {
			return state, replayMismatch(entry, "sequence %d does not follow %d", entry.Sequence(), lastSequence)
		}
		if entry.PreviousBalance() != state.NetPosition() {
			return state, replayMismatch(entry, "previous balance %s, replayed %s", entry.PreviousBalance(), state.NetPosition())
		}
		next, err := replayEntry(state, entry)
		if err != nil {
			return state, replayMismatch(entry, "%v", err)
		}
		if next.NetPosition() != entry.RemainingBalance() {
			return state, replayMismatch(entry, "remaining balance %s, replayed %s", entry.RemainingBalance(), next.NetPosition())
		}
		if next.Type != entry.AccountType() || next.Limit != entry.CreditLimit() {
			return state, replayMismatch(entry, "account %s/%s, replayed %s/%s",
				entry.AccountType(), entry.CreditLimit(), next.Type, next.Limit)
		}
		state = next
		lastSequence = entry.Sequence()
	}
	return state, nil
}

func replayEntry(state AccountState, entry Entry) (AccountState, error) {
	switch entry.TransactionType() {
	case TransactionBalanceAdded:
		return replayAllocation(state, OperationAdd, entry.Amount())
	case TransactionBalanceExcluded:
		return replayAllocation(state, OperationExclude, entry.Amount().Negated())
	case TransactionSale:
		if entry.Amount() != entry.CreditAmount().Signed().Negated() {
			return state, fmt.Errorf("sale amount %s does not match credit portion %s", entry.Amount(), entry.CreditAmount())
		}
		if entry.CreditAmount() == 0 {
			return state, nil
		}
		return replayAllocation(state, OperationExclude, entry.CreditAmount().Signed())
	case TransactionCreditLimitChanged:
		if entry.Amount() != 0 {
			return state, fmt.Errorf("limit change moved %s", entry.Amount())
		}
		if state.Type == AccountTypeCash && entry.AccountType() == AccountTypeCredit {
			return state.ConvertToCredit(entry.CreditLimit())
		}
		return state.WithLimit(entry.CreditLimit())
	default:
		return state, fmt.Errorf("%w: %q", ErrInvalidTransactionType, entry.TransactionType())
	}
}

func replayAllocation(state AccountState, operation Operation, amount SignedAmountCents) (AccountState, error) {
	positive, err := NewPositiveAmountCents(amount.Int64())
	if err != nil {
		return state, err
	}
	allocation, err := Allocate(state, operation, positive)
	if err != nil {
		return state, err
	}
	return allocation.Next, nil
}

func replayMismatch(entry Entry, format string, args ...any) error {
	return fmt.Errorf("%w: entry %s (sequence %d): %s", ErrReplayMismatch,
		entry.EntryID(), entry.Sequence(), fmt.Sprintf(format, args...))
}

// Reconciliation compares the stored account with one rebuilt from the ledger.
type Reconciliation struct {
	CustomerID   CustomerID
	Stored       AccountRecord
	Replayed     AccountState
	SumOfAmounts SignedAmountCents
	EntryCount   int
	Consistent   bool
	Mismatch     error
}

// Reconcile replays the customer's ledger and checks it against the stored account.
// A ledger that does not replay is reported in Mismatch, not as an error.
func (service *Service) Reconcile(ctx context.Context, customerID CustomerID) (Reconciliation, error) {
	if customerID.String() == "" {
		return Reconciliation{}, fmt.Errorf("%w: empty value", ErrInvalidCustomerID)
	}
	stored, err := service.store.GetAccount(ctx, customerID)
	if err != nil {
		return Reconciliation{}, err
	}
	entries, err := service.store.ReplayEntries(ctx, customerID)
	if err != nil {
		return Reconciliation{}, err
	}
	reconciliation := Reconciliation{
		CustomerID: customerID,
		Stored:     stored,
		EntryCount: len(entries),
	}
	for _, entry := range entries {
		reconciliation.SumOfAmounts += entry.Amount()
	}
	replayed, err := Replay(entries)
	reconciliation.Replayed = replayed
	switch {
	case errors.Is(err, ErrReplayMismatch):
		reconciliation.Mismatch = err
	case err != nil:
		return Reconciliation{}, err
	case replayed != stored.State:
		reconciliation.Mismatch = fmt.Errorf("%w: stored %+v, replayed %+v", ErrReplayMismatch, stored.State, replayed)
	case reconciliation.SumOfAmounts != stored.State.NetPosition():
		reconciliation.Mismatch = fmt.Errorf("%w: amounts sum to %s, net position %s",
			ErrReplayMismatch, reconciliation.SumOfAmounts, stored.State.NetPosition())
	}
	reconciliation.Consistent = reconciliation.Mismatch == nil
	return reconciliation, nil
}
