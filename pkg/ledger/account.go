package ledger

import (
	"fmt"
	"math"
	"time"
)

// AccountState is the current standing of one customer's account.
type AccountState struct {
	Type       AccountType
	Limit      AmountCents
	UsedAmount AmountCents
	Balance    AmountCents
}

// NewCashAccount returns the zero state every account starts from.
func NewCashAccount() AccountState {
	return AccountState{Type: AccountTypeCash}
}

// NetPosition is balance minus used amount; negative means the customer owes the store.
func (state AccountState) NetPosition() SignedAmountCents {
	return state.Balance.Signed() - state.UsedAmount.Signed()
}

// AvailableCredit is the unused part of the credit limit.
func (state AccountState) AvailableCredit() AmountCents {
	if state.Type != AccountTypeCredit || state.UsedAmount >= state.Limit {
		return 0
	}
	return state.Limit - state.UsedAmount
}

// Validate checks 0 <= used <= limit and balance >= 0.
func (state AccountState) Validate() error {
	if state.Type != AccountTypeCash && state.Type != AccountTypeCredit {
		return fmt.Errorf("%w: %q", ErrInvalidAccountType, state.Type)
	}
	if state.Balance < 0 || state.UsedAmount < 0 || state.Limit < 0 {
		return fmt.Errorf("%w: negative component", ErrInvalidBalance)
	}
	if state.UsedAmount == 0 {
		return nil
	}
	if state.Type == AccountTypeCash {
		return fmt.Errorf("%w: cash account carries used amount %s", ErrInsufficientFunds, state.UsedAmount)
	}
	if state.UsedAmount > state.Limit {
		return &CreditLimitError{Limit: state.Limit, Attempted: state.UsedAmount}
	}
	return nil
}

// ApplyDelta returns the state after adding the deltas, or the invariant it would break.
func ApplyDelta(current AccountState, deltaBalance SignedAmountCents, deltaUsed SignedAmountCents) (AccountState, error) {
	nextBalance, ok := addCents(current.Balance.Signed(), deltaBalance)
	if !ok {
		return current, fmt.Errorf("%w: balance %s plus %s overflows", ErrInvalidAmount, current.Balance, deltaBalance)
	}
	nextUsed, ok := addCents(current.UsedAmount.Signed(), deltaUsed)
	if !ok {
		// No limit can hold a usage past the int64 range.
		return current, &CreditLimitError{Limit: current.Limit, Attempted: AmountCents(math.MaxInt64)}
	}
	if nextBalance < 0 {
		return current, fmt.Errorf("%w: balance would become %s", ErrInvalidBalance, nextBalance)
	}
	if nextUsed < 0 {
		return current, fmt.Errorf("%w: used amount would become %s", ErrInvalidBalance, nextUsed)
	}
	next := current
	next.Balance = AmountCents(nextBalance)
	next.UsedAmount = AmountCents(nextUsed)
	if next.UsedAmount > 0 && next.Type != AccountTypeCredit {
		return current, fmt.Errorf("%w: cash account cannot carry %s of debt", ErrInsufficientFunds, next.UsedAmount)
	}
	if next.UsedAmount > next.Limit {
		return current, &CreditLimitError{Limit: next.Limit, Attempted: next.UsedAmount}
	}
	return next, nil
}

func addCents(left SignedAmountCents, right SignedAmountCents) (SignedAmountCents, bool) {
	if (right > 0 && left > math.MaxInt64-right) || (right < 0 && left < math.MinInt64-right) {
		return 0, false
	}
	return left + right, true
}

// WithLimit returns the state with a new credit limit.
func (state AccountState) WithLimit(newLimit AmountCents) (AccountState, error) {
	if state.Type != AccountTypeCredit {
		return state, ErrAccountNotCredit
	}
	if newLimit < 0 {
		return state, fmt.Errorf("%w: limit must not be negative", ErrInvalidAmount)
	}
	if state.UsedAmount > newLimit {
		return state, &CreditLimitError{Limit: newLimit, Attempted: state.UsedAmount}
	}
	next := state
	next.Limit = newLimit
	return next, nil
}

// ConvertToCredit performs the one-way cash to credit transition.
func (state AccountState) ConvertToCredit(limit AmountCents) (AccountState, error) {
	if state.Type == AccountTypeCredit {
		return state, fmt.Errorf("%w: account is already credit", ErrAccountTypeTransition)
	}
	if limit < 0 {
		return state, fmt.Errorf("%w: limit must not be negative", ErrInvalidAmount)
	}
	next := state
	next.Type = AccountTypeCredit
	next.Limit = limit
	return next, nil
}

// AccountRecord is a persisted account with its optimistic concurrency version.
type AccountRecord struct {
	CustomerID CustomerID
	StoreID    StoreID
	State      AccountState
	Version    int64
	UpdatedAt  time.Time
}
