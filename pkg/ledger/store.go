package ledger

import (
	"context"
	"time"
)

// Store is the persistence contract used by Service.
// Entries can be appended and read; nothing updates or deletes them.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetAccount(ctx context.Context, customerID CustomerID) (AccountRecord, error)
	// LockAccount reads the account and holds a row lock for the rest of the transaction where supported.
	LockAccount(ctx context.Context, customerID CustomerID) (AccountRecord, error)
	// UpdateAccount writes state only if the stored version still equals expectedVersion.
	UpdateAccount(ctx context.Context, customerID CustomerID, expectedVersion int64, state AccountState) (AccountRecord, error)
	InsertEntry(ctx context.Context, entry Entry) error
	// ListEntries returns entries dated within [from, to], newest first.
	ListEntries(ctx context.Context, customerID CustomerID, from time.Time, to time.Time) ([]Entry, error)
	// ReplayEntries returns every entry of the customer, oldest first.
	ReplayEntries(ctx context.Context, customerID CustomerID) ([]Entry, error)
}
