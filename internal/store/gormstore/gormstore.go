package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON   = "{}"
	dialectPostgres       = "postgres"
	pgUniqueViolationCode = "23505"
	pgLockNotAvailable    = "55P03"
	sqliteConstraintCode  = 19
	sqliteColumnSequence  = "ledger_entries.sequence"
	sqliteColumnIdemKey   = "ledger_entries.idempotency_key"
	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectEntry     = "entry"
	errorCodeCreate       = "create"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeLock         = "lock"
	errorCodeLockTimeout  = "lock_timeout"
	errorCodeBegin        = "begin"
	errorSubjectTx        = "transaction"
	errorCodeUpdate       = "update"
	errorCodeVersion      = "version"
)

// Store implements ledger.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. On postgres a deadline on ctx also
// caps row lock waits.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if store.db.Dialector.Name() == dialectPostgres {
			if setting, ok := lockTimeoutSetting(ctx); ok {
				if err := transaction.Exec("SELECT set_config('lock_timeout', ?, true)", setting).Error; err != nil {
					return ledger.PersistenceError(errorOperationStore, errorSubjectTx, errorCodeBegin, err)
				}
			}
		}
		return fn(ctx, &Store{db: transaction})
	})
}

func lockTimeoutSetting(ctx context.Context) (string, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return "", false
	}
	remaining := time.Until(deadline).Milliseconds()
	if remaining < 1 {
		remaining = 1
	}
	return fmt.Sprintf("%dms", remaining), true
}

// RegisterCustomer creates a zero-balance cash account unless one already exists.
func (store *Store) RegisterCustomer(ctx context.Context, customerID ledger.CustomerID, storeID ledger.StoreID) (ledger.AccountRecord, error) {
	now := time.Now().UTC()
	model := CustomerAccount{
		CustomerID:  customerID.String(),
		StoreID:     storeID.String(),
		AccountType: ledger.AccountTypeCash.String(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "customer_id"}}, DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return ledger.AccountRecord{}, ledger.PersistenceError(errorOperationStore, errorSubjectAccount, errorCodeCreate, err)
	}
	return store.GetAccount(ctx, customerID)
}

func (store *Store) GetAccount(ctx context.Context, customerID ledger.CustomerID) (ledger.AccountRecord, error) {
	return store.loadAccount(store.db.WithContext(ctx), customerID, errorCodeGet)
}

// LockAccount takes a row lock on postgres; sqlite serializes writers on its own.
func (store *Store) LockAccount(ctx context.Context, customerID ledger.CustomerID) (ledger.AccountRecord, error) {
	query := store.db.WithContext(ctx)
	if store.db.Dialector.Name() == dialectPostgres {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return store.loadAccount(query, customerID, errorCodeLock)
}

func (store *Store) loadAccount(query *gorm.DB, customerID ledger.CustomerID, code string) (ledger.AccountRecord, error) {
	var model CustomerAccount
	err := query.Where("customer_id = ?", customerID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.AccountRecord{}, wrapStoreError(errorSubjectAccount, code, ledger.ErrUnknownCustomer)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return ledger.AccountRecord{}, wrapStoreError(errorSubjectAccount, errorCodeLockTimeout, fmt.Errorf("%w: %w", ledger.ErrLockTimeout, err))
		}
		return ledger.AccountRecord{}, ledger.PersistenceError(errorOperationStore, errorSubjectAccount, code, err)
	}
	record, err := mapCustomerAccount(model)
	if err != nil {
		return ledger.AccountRecord{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return record, nil
}

// UpdateAccount writes state only when the stored version matches expectedVersion.
func (store *Store) UpdateAccount(ctx context.Context, customerID ledger.CustomerID, expectedVersion int64, state ledger.AccountState) (ledger.AccountRecord, error) {
	result := store.db.WithContext(ctx).
		Model(&CustomerAccount{}).
		Where("customer_id = ? AND version = ?", customerID.String(), expectedVersion).
		Updates(map[string]any{
			"account_type":       state.Type.String(),
			"credit_limit_cents": state.Limit.Int64(),
			"used_amount_cents":  state.UsedAmount.Int64(),
			"balance_cents":      state.Balance.Int64(),
			"version":            expectedVersion + 1,
			"updated_at":         time.Now().UTC(),
		})
	if result.Error != nil {
		return ledger.AccountRecord{}, ledger.PersistenceError(errorOperationStore, errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return ledger.AccountRecord{}, wrapStoreError(errorSubjectAccount, errorCodeVersion, ledger.ErrConcurrencyConflict)
	}
	return store.loadAccount(store.db.WithContext(ctx), customerID, errorCodeGet)
}

func (store *Store) InsertEntry(ctx context.Context, entry ledger.Entry) error {
	model := LedgerEntry{
		EntryID:               entry.EntryID().String(),
		CustomerID:            entry.CustomerID().String(),
		Sequence:              entry.Sequence(),
		TransactionType:       entry.TransactionType().String(),
		PaymentKind:           entry.PaymentType().Kind().String(),
		PreviousBalanceCents:  entry.PreviousBalance().Int64(),
		AmountCents:           entry.Amount().Int64(),
		RemainingBalanceCents: entry.RemainingBalance().Int64(),
		CashAmountCents:       entry.CashAmount().Int64(),
		CreditAmountCents:     entry.CreditAmount().Int64(),
		AccountType:           entry.AccountType().String(),
		CreditLimitCents:      entry.CreditLimit().Int64(),
		Date:                  entry.Date(),
		StoreID:               entry.StoreID().String(),
		AddedBy:               entry.AddedBy().String(),
		Note:                  entry.Note(),
		Slip:                  entry.Slip(),
		Metadata:              datatypesJSON(entry.Metadata().String()),
		CreatedAt:             time.Now().UTC(),
	}
	if saleID, ok := entry.SaleID(); ok {
		value := saleID.String()
		model.SaleID = &value
	}
	if key, ok := entry.IdempotencyKey(); ok {
		value := key.String()
		model.IdempotencyKey = &value
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, indexEntryIdempotency, sqliteColumnIdemKey):
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	case isUniqueViolation(err, indexEntrySequence, sqliteColumnSequence):
		return wrapStoreError(errorSubjectEntry, errorCodeVersion, ledger.ErrConcurrencyConflict)
	default:
		return ledger.PersistenceError(errorOperationStore, errorSubjectEntry, errorCodeInsert, err)
	}
}

func (store *Store) ListEntries(ctx context.Context, customerID ledger.CustomerID, from time.Time, to time.Time) ([]ledger.Entry, error) {
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("customer_id = ? AND date >= ? AND date <= ?", customerID.String(), from.UTC(), to.UTC()).
		Order("sequence DESC").
		Find(&rows).Error
	if err != nil {
		return nil, ledger.PersistenceError(errorOperationStore, errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

func (store *Store) ReplayEntries(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Entry, error) {
	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("customer_id = ?", customerID.String()).
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, ledger.PersistenceError(errorOperationStore, errorSubjectEntry, errorCodeList, err)
	}
	return mapLedgerEntries(rows)
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func mapLedgerEntries(rows []LedgerEntry) ([]ledger.Entry, error) {
	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func mapCustomerAccount(model CustomerAccount) (ledger.AccountRecord, error) {
	customerID, err := ledger.NewCustomerID(model.CustomerID)
	if err != nil {
		return ledger.AccountRecord{}, err
	}
	storeID, err := ledger.NewStoreID(model.StoreID)
	if err != nil {
		return ledger.AccountRecord{}, err
	}
	accountType, err := ledger.ParseAccountType(model.AccountType)
	if err != nil {
		return ledger.AccountRecord{}, err
	}
	state := ledger.AccountState{
		Type:       accountType,
		Limit:      ledger.AmountCents(model.CreditLimitCents),
		UsedAmount: ledger.AmountCents(model.UsedAmountCents),
		Balance:    ledger.AmountCents(model.BalanceCents),
	}
	if err := state.Validate(); err != nil {
		return ledger.AccountRecord{}, err
	}
	return ledger.AccountRecord{
		CustomerID: customerID,
		StoreID:    storeID,
		State:      state,
		Version:    model.Version,
		UpdatedAt:  model.UpdatedAt.UTC(),
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	entryID, err := ledger.NewEntryID(row.EntryID)
	if err != nil {
		return ledger.Entry{}, err
	}
	customerID, err := ledger.NewCustomerID(row.CustomerID)
	if err != nil {
		return ledger.Entry{}, err
	}
	transactionType, err := ledger.ParseTransactionType(row.TransactionType)
	if err != nil {
		return ledger.Entry{}, err
	}
	paymentKind, err := ledger.ParsePaymentKind(row.PaymentKind)
	if err != nil {
		return ledger.Entry{}, err
	}
	paymentType, err := ledger.NewPaymentType(paymentKind, row.CashAmountCents, row.CreditAmountCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	accountType, err := ledger.ParseAccountType(row.AccountType)
	if err != nil {
		return ledger.Entry{}, err
	}
	cashAmount, err := ledger.NewAmountCents(row.CashAmountCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	creditAmount, err := ledger.NewAmountCents(row.CreditAmountCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	creditLimit, err := ledger.NewAmountCents(row.CreditLimitCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	storeID, err := ledger.NewStoreID(row.StoreID)
	if err != nil {
		return ledger.Entry{}, err
	}
	addedBy, err := ledger.NewActorID(row.AddedBy)
	if err != nil {
		return ledger.Entry{}, err
	}
	var saleID *ledger.SaleID
	if row.SaleID != nil {
		parsed, err := ledger.NewSaleID(*row.SaleID)
		if err != nil {
			return ledger.Entry{}, err
		}
		saleID = &parsed
	}
	var idempotencyKey *ledger.IdempotencyKey
	if row.IdempotencyKey != nil {
		parsed, err := ledger.NewIdempotencyKey(*row.IdempotencyKey)
		if err != nil {
			return ledger.Entry{}, err
		}
		idempotencyKey = &parsed
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.NewEntry(ledger.EntryInput{
		EntryID:          entryID,
		CustomerID:       customerID,
		Sequence:         row.Sequence,
		TransactionType:  transactionType,
		PaymentType:      paymentType,
		PreviousBalance:  ledger.SignedAmountCents(row.PreviousBalanceCents),
		Amount:           ledger.SignedAmountCents(row.AmountCents),
		RemainingBalance: ledger.SignedAmountCents(row.RemainingBalanceCents),
		CashAmount:       cashAmount,
		CreditAmount:     creditAmount,
		AccountType:      accountType,
		CreditLimit:      creditLimit,
		Date:             row.Date,
		StoreID:          storeID,
		AddedBy:          addedBy,
		Note:             row.Note,
		SaleID:           saleID,
		Slip:             row.Slip,
		IdempotencyKey:   idempotencyKey,
		Metadata:         metadata,
	})
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

// isUniqueViolation matches a unique index by its postgres name or the sqlite column it names.
func isUniqueViolation(err error, indexName string, sqliteColumn string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == indexName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode && strings.Contains(sqliteErr.Error(), sqliteColumn)
	}
	return false
}
