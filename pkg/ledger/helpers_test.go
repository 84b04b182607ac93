package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

const (
	customerIDValue = "customer-1"
	storeIDValue    = "store-1"
	actorIDValue    = "cashier-1"
	actorRoleValue  = "cashier"
)

var fixedNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

// memoryStore holds committed state; each WithTx works on a staged copy that is
// discarded when fn fails.
type memoryStore struct {
	mu       sync.Mutex
	accounts map[string]AccountRecord
	entries  []Entry

	getAccountError    error
	lockAccountError   error
	updateAccountError error
	insertEntryError   error
	listEntriesError   error
	replayEntriesError error
	staleVersion       bool
	// holdRowLock makes LockAccount wait like a row lock held by another process.
	holdRowLock bool

	transactions int
}

type memoryTxStore struct {
	base     *memoryStore
	accounts map[string]AccountRecord
	entries  []Entry
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{accounts: make(map[string]AccountRecord)}
}

func (store *memoryStore) register(test *testing.T, state AccountState) CustomerID {
	test.Helper()
	customerID := mustCustomerID(test, customerIDValue)
	store.put(customerID, state)
	return customerID
}

func (store *memoryStore) put(customerID CustomerID, state AccountState) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.accounts[customerID.String()] = AccountRecord{
		CustomerID: customerID,
		StoreID:    StoreID{value: storeIDValue},
		State:      state,
	}
}

func (store *memoryStore) committedEntries() []Entry {
	store.mu.Lock()
	defer store.mu.Unlock()
	return append([]Entry(nil), store.entries...)
}

func (store *memoryStore) committedAccount(customerID CustomerID) AccountRecord {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.accounts[customerID.String()]
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.transactions++
	staged := &memoryTxStore{
		base:     store,
		accounts: make(map[string]AccountRecord, len(store.accounts)),
		entries:  append([]Entry(nil), store.entries...),
	}
	for key, record := range store.accounts {
		staged.accounts[key] = record
	}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	store.accounts = staged.accounts
	store.entries = staged.entries
	return nil
}

func (store *memoryStore) GetAccount(ctx context.Context, customerID CustomerID) (AccountRecord, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.getAccountError != nil {
		return AccountRecord{}, store.getAccountError
	}
	record, ok := store.accounts[customerID.String()]
	if !ok {
		return AccountRecord{}, ErrUnknownCustomer
	}
	return record, nil
}

func (store *memoryStore) LockAccount(ctx context.Context, customerID CustomerID) (AccountRecord, error) {
	return AccountRecord{}, fmt.Errorf("lock outside transaction")
}

func (store *memoryStore) UpdateAccount(ctx context.Context, customerID CustomerID, expectedVersion int64, state AccountState) (AccountRecord, error) {
	return AccountRecord{}, fmt.Errorf("update outside transaction")
}

func (store *memoryStore) InsertEntry(ctx context.Context, entry Entry) error {
	return fmt.Errorf("insert outside transaction")
}

func (store *memoryStore) ListEntries(ctx context.Context, customerID CustomerID, from time.Time, to time.Time) ([]Entry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.listEntriesError != nil {
		return nil, store.listEntriesError
	}
	var matched []Entry
	for _, entry := range store.entries {
		if entry.CustomerID() != customerID {
			continue
		}
		if entry.Date().Before(from) || entry.Date().After(to) {
			continue
		}
		matched = append(matched, entry)
	}
	sort.Slice(matched, func(left, right int) bool {
		return matched[left].Sequence() > matched[right].Sequence()
	})
	return matched, nil
}

func (store *memoryStore) ReplayEntries(ctx context.Context, customerID CustomerID) ([]Entry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.replayEntriesError != nil {
		return nil, store.replayEntriesError
	}
	var matched []Entry
	for _, entry := range store.entries {
		if entry.CustomerID() == customerID {
			matched = append(matched, entry)
		}
	}
	sort.Slice(matched, func(left, right int) bool {
		return matched[left].Sequence() < matched[right].Sequence()
	})
	return matched, nil
}

func (txStore *memoryTxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, txStore)
}

func (txStore *memoryTxStore) GetAccount(ctx context.Context, customerID CustomerID) (AccountRecord, error) {
	if txStore.base.getAccountError != nil {
		return AccountRecord{}, txStore.base.getAccountError
	}
	record, ok := txStore.accounts[customerID.String()]
	if !ok {
		return AccountRecord{}, ErrUnknownCustomer
	}
	return record, nil
}

func (txStore *memoryTxStore) LockAccount(ctx context.Context, customerID CustomerID) (AccountRecord, error) {
	if txStore.base.lockAccountError != nil {
		return AccountRecord{}, txStore.base.lockAccountError
	}
	if txStore.base.holdRowLock {
		select {
		case <-ctx.Done():
			return AccountRecord{}, PersistenceError("store", "account", "lock", ctx.Err())
		case <-time.After(2 * time.Second):
			return AccountRecord{}, fmt.Errorf("row lock still held")
		}
	}
	return txStore.GetAccount(ctx, customerID)
}

func (txStore *memoryTxStore) UpdateAccount(ctx context.Context, customerID CustomerID, expectedVersion int64, state AccountState) (AccountRecord, error) {
	if txStore.base.updateAccountError != nil {
		return AccountRecord{}, txStore.base.updateAccountError
	}
	record, ok := txStore.accounts[customerID.String()]
	if !ok {
		return AccountRecord{}, ErrUnknownCustomer
	}
	if txStore.base.staleVersion || record.Version != expectedVersion {
		return AccountRecord{}, ErrConcurrencyConflict
	}
	record.State = state
	record.Version++
	record.UpdatedAt = fixedNow
	txStore.accounts[customerID.String()] = record
	return record, nil
}

func (txStore *memoryTxStore) InsertEntry(ctx context.Context, entry Entry) error {
	if txStore.base.insertEntryError != nil {
		return txStore.base.insertEntryError
	}
	newKey, hasKey := entry.IdempotencyKey()
	for _, existing := range txStore.entries {
		if existing.CustomerID() != entry.CustomerID() {
			continue
		}
		if existing.Sequence() == entry.Sequence() {
			return ErrConcurrencyConflict
		}
		if existingKey, ok := existing.IdempotencyKey(); ok && hasKey && existingKey == newKey {
			return ErrDuplicateIdempotencyKey
		}
	}
	txStore.entries = append(txStore.entries, entry)
	return nil
}

func (txStore *memoryTxStore) ListEntries(ctx context.Context, customerID CustomerID, from time.Time, to time.Time) ([]Entry, error) {
	return nil, fmt.Errorf("list inside transaction")
}

func (txStore *memoryTxStore) ReplayEntries(ctx context.Context, customerID CustomerID) ([]Entry, error) {
	return nil, fmt.Errorf("replay inside transaction")
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) recorded() []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return append([]OperationLog(nil), logger.entries...)
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	sequence := 0
	var mu sync.Mutex
	generator := func() string {
		mu.Lock()
		defer mu.Unlock()
		sequence++
		return fmt.Sprintf("entry-%03d", sequence)
	}
	allOptions := append([]ServiceOption{WithEntryIDGenerator(generator)}, options...)
	service, err := NewService(store, func() time.Time { return fixedNow }, allOptions...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustActor(test *testing.T) Actor {
	test.Helper()
	actor, err := NewActor(actorIDValue, actorRoleValue, storeIDValue)
	if err != nil {
		test.Fatalf("actor: %v", err)
	}
	return actor
}

func mustCustomerID(test *testing.T, raw string) CustomerID {
	test.Helper()
	customerID, err := NewCustomerID(raw)
	if err != nil {
		test.Fatalf("customer id: %v", err)
	}
	return customerID
}

func mustPositiveAmount(test *testing.T, raw int64) PositiveAmountCents {
	test.Helper()
	amount, err := NewPositiveAmountCents(raw)
	if err != nil {
		test.Fatalf("positive amount: %v", err)
	}
	return amount
}

func mustIdempotencyKey(test *testing.T, raw string) *IdempotencyKey {
	test.Helper()
	key, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	return &key
}

func mustSaleID(test *testing.T, raw string) SaleID {
	test.Helper()
	saleID, err := NewSaleID(raw)
	if err != nil {
		test.Fatalf("sale id: %v", err)
	}
	return saleID
}

func creditAccount(limit int64, used int64, balance int64) AccountState {
	return AccountState{
		Type:       AccountTypeCredit,
		Limit:      AmountCents(limit),
		UsedAmount: AmountCents(used),
		Balance:    AmountCents(balance),
	}
}

func cashAccount(balance int64) AccountState {
	return AccountState{Type: AccountTypeCash, Balance: AmountCents(balance)}
}

func paymentRequest(customerID CustomerID, operation Operation, amount PositiveAmountCents) PaymentRequest {
	return PaymentRequest{
		CustomerID:  customerID,
		Operation:   operation,
		Amount:      amount,
		PaymentType: CashPayment{},
	}
}
