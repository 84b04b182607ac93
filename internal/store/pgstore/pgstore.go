package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	constraintEntrySequence    = "uniq_ledger_entries_customer_sequence"
	constraintEntryIdempotency = "uniq_ledger_entries_customer_idempotency"
	pgUniqueViolationCode      = "23505"
	pgLockNotAvailableCode     = "55P03"
	errorOperationStore        = "store"
	errorSubjectAccount        = "account"
	errorSubjectEntry          = "entry"
	errorSubjectSchema         = "schema"
	errorSubjectTransaction    = "transaction"
	errorCodeBegin             = "begin"
	errorCodeCommit            = "commit"
	errorCodeCreate            = "create"
	errorCodeDuplicate         = "duplicate"
	errorCodeGet               = "get"
	errorCodeInsert            = "insert"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeLock              = "lock"
	errorCodeLockTimeout       = "lock_timeout"
	errorCodeMigrate           = "migrate"
	errorCodeUpdate            = "update"
	errorCodeVersion           = "version"

	sqlInsertAccount = `
		insert into customer_accounts(customer_id, store_id, account_type)
		values ($1, $2, 'cash')
		on conflict (customer_id) do nothing
	`

	sqlSelectAccount = `
		select customer_id, store_id, account_type, credit_limit_cents, used_amount_cents, balance_cents, version, updated_at
		from customer_accounts
		where customer_id = $1
	`

	sqlSelectAccountForUpdate = sqlSelectAccount + ` for update`

	sqlSetLockTimeout = `select set_config('lock_timeout', $1, true)`

	sqlUpdateAccount = `
		update customer_accounts
		set account_type = $3, credit_limit_cents = $4, used_amount_cents = $5, balance_cents = $6,
			version = version + 1, updated_at = now()
		where customer_id = $1 and version = $2
		returning customer_id, store_id, account_type, credit_limit_cents, used_amount_cents, balance_cents, version, updated_at
	`

	sqlInsertEntry = `
		insert into ledger_entries(
			entry_id, customer_id, sequence, transaction_type, payment_kind,
			previous_balance_cents, amount_cents, remaining_balance_cents, cash_amount_cents, credit_amount_cents,
			account_type, credit_limit_cents, date, store_id, added_by, note, sale_id, slip, idempotency_key, metadata
		)
		values(
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, nullif($17, ''), $18, nullif($19, ''),
			coalesce(nullif($20, ''), '{}')::jsonb
		)
	`

	sqlEntryColumns = `
		select
			entry_id, customer_id, sequence, transaction_type, payment_kind,
			previous_balance_cents, amount_cents, remaining_balance_cents, cash_amount_cents, credit_amount_cents,
			account_type, credit_limit_cents, date, store_id, added_by, note,
			coalesce(sale_id, ''), slip, coalesce(idempotency_key, ''), metadata::text
		from ledger_entries
	`

	sqlListEntries = sqlEntryColumns + `
		where customer_id = $1 and date >= $2 and date <= $3
		order by sequence desc
	`

	sqlReplayEntries = sqlEntryColumns + `
		where customer_id = $1
		order by sequence asc
	`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db querier
}

// Store implements ledger.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements ledger.Store for an active transaction.
type TxStore struct {
	queries
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return ledger.PersistenceError(errorOperationStore, errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

// WithTx runs fn in a read-committed transaction. A deadline on ctx also caps
// how long statements inside it wait for row locks.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return ledger.PersistenceError(errorOperationStore, errorSubjectTransaction, errorCodeBegin, err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if setting, ok := lockTimeoutSetting(ctx); ok {
		if _, err := tx.Exec(ctx, sqlSetLockTimeout, setting); err != nil {
			return ledger.PersistenceError(errorOperationStore, errorSubjectTransaction, errorCodeBegin, err)
		}
	}
	if err := fn(ctx, &TxStore{queries: queries{db: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.PersistenceError(errorOperationStore, errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// lockTimeoutSetting renders the time left on ctx as a postgres lock_timeout value.
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
	if _, err := store.pool.Exec(ctx, sqlInsertAccount, customerID.String(), storeID.String()); err != nil {
		return ledger.AccountRecord{}, ledger.PersistenceError(errorOperationStore, errorSubjectAccount, errorCodeCreate, err)
	}
	return store.GetAccount(ctx, customerID)
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, store)
}

func (querySet queries) GetAccount(ctx context.Context, customerID ledger.CustomerID) (ledger.AccountRecord, error) {
	return querySet.selectAccount(ctx, sqlSelectAccount, customerID, errorCodeGet)
}

func (querySet queries) LockAccount(ctx context.Context, customerID ledger.CustomerID) (ledger.AccountRecord, error) {
	return querySet.selectAccount(ctx, sqlSelectAccountForUpdate, customerID, errorCodeLock)
}

func (querySet queries) selectAccount(ctx context.Context, query string, customerID ledger.CustomerID, code string) (ledger.AccountRecord, error) {
	record, err := scanAccount(querySet.db.QueryRow(ctx, query, customerID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.AccountRecord{}, wrapStoreError(errorSubjectAccount, code, ledger.ErrUnknownCustomer)
	}
	if err != nil {
		return ledger.AccountRecord{}, classifyAccountError(code, err)
	}
	return record, nil
}

func (querySet queries) UpdateAccount(ctx context.Context, customerID ledger.CustomerID, expectedVersion int64, state ledger.AccountState) (ledger.AccountRecord, error) {
	record, err := scanAccount(querySet.db.QueryRow(ctx, sqlUpdateAccount,
		customerID.String(),
		expectedVersion,
		state.Type.String(),
		state.Limit.Int64(),
		state.UsedAmount.Int64(),
		state.Balance.Int64(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.AccountRecord{}, wrapStoreError(errorSubjectAccount, errorCodeVersion, ledger.ErrConcurrencyConflict)
	}
	if err != nil {
		return ledger.AccountRecord{}, classifyAccountError(errorCodeUpdate, err)
	}
	return record, nil
}

func (querySet queries) InsertEntry(ctx context.Context, entry ledger.Entry) error {
	var saleID, idempotencyKey string
	if value, ok := entry.SaleID(); ok {
		saleID = value.String()
	}
	if value, ok := entry.IdempotencyKey(); ok {
		idempotencyKey = value.String()
	}
	_, err := querySet.db.Exec(ctx, sqlInsertEntry,
		entry.EntryID().String(),
		entry.CustomerID().String(),
		entry.Sequence(),
		entry.TransactionType().String(),
		entry.PaymentType().Kind().String(),
		entry.PreviousBalance().Int64(),
		entry.Amount().Int64(),
		entry.RemainingBalance().Int64(),
		entry.CashAmount().Int64(),
		entry.CreditAmount().Int64(),
		entry.AccountType().String(),
		entry.CreditLimit().Int64(),
		entry.Date(),
		entry.StoreID().String(),
		entry.AddedBy().String(),
		entry.Note(),
		saleID,
		entry.Slip(),
		idempotencyKey,
		entry.Metadata().String(),
	)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err, constraintEntryIdempotency):
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	case isUniqueViolation(err, constraintEntrySequence):
		return wrapStoreError(errorSubjectEntry, errorCodeVersion, ledger.ErrConcurrencyConflict)
	default:
		return ledger.PersistenceError(errorOperationStore, errorSubjectEntry, errorCodeInsert, err)
	}
}

func (querySet queries) ListEntries(ctx context.Context, customerID ledger.CustomerID, from time.Time, to time.Time) ([]ledger.Entry, error) {
	rows, err := querySet.db.Query(ctx, sqlListEntries, customerID.String(), from.UTC(), to.UTC())
	if err != nil {
		return nil, ledger.PersistenceError(errorOperationStore, errorSubjectEntry, errorCodeList, err)
	}
	return scanEntries(rows)
}

func (querySet queries) ReplayEntries(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Entry, error) {
	rows, err := querySet.db.Query(ctx, sqlReplayEntries, customerID.String())
	if err != nil {
		return nil, ledger.PersistenceError(errorOperationStore, errorSubjectEntry, errorCodeList, err)
	}
	return scanEntries(rows)
}

// invalidRowError marks a row that was read but does not form a valid domain value.
type invalidRowError struct {
	err error
}

func (rowError invalidRowError) Error() string { return rowError.err.Error() }
func (rowError invalidRowError) Unwrap() error { return rowError.err }

func scanAccount(row pgx.Row) (ledger.AccountRecord, error) {
	var (
		customerIDValue  string
		storeIDValue     string
		accountTypeValue string
		limitCents       int64
		usedCents        int64
		balanceCents     int64
		version          int64
		updatedAt        time.Time
	)
	if err := row.Scan(&customerIDValue, &storeIDValue, &accountTypeValue, &limitCents, &usedCents, &balanceCents, &version, &updatedAt); err != nil {
		return ledger.AccountRecord{}, err
	}
	customerID, err := ledger.NewCustomerID(customerIDValue)
	if err != nil {
		return ledger.AccountRecord{}, invalidRowError{err: err}
	}
	storeID, err := ledger.NewStoreID(storeIDValue)
	if err != nil {
		return ledger.AccountRecord{}, invalidRowError{err: err}
	}
	accountType, err := ledger.ParseAccountType(accountTypeValue)
	if err != nil {
		return ledger.AccountRecord{}, invalidRowError{err: err}
	}
	state := ledger.AccountState{
		Type:       accountType,
		Limit:      ledger.AmountCents(limitCents),
		UsedAmount: ledger.AmountCents(usedCents),
		Balance:    ledger.AmountCents(balanceCents),
	}
	if err := state.Validate(); err != nil {
		return ledger.AccountRecord{}, invalidRowError{err: err}
	}
	return ledger.AccountRecord{
		CustomerID: customerID,
		StoreID:    storeID,
		State:      state,
		Version:    version,
		UpdatedAt:  updatedAt.UTC(),
	}, nil
}

func classifyAccountError(code string, err error) error {
	var rowError invalidRowError
	if errors.As(err, &rowError) {
		return wrapStoreError(errorSubjectAccount, errorCodeInvalid, rowError.err)
	}
	if isLockNotAvailable(err) {
		return wrapStoreError(errorSubjectAccount, errorCodeLockTimeout, fmt.Errorf("%w: %w", ledger.ErrLockTimeout, err))
	}
	return ledger.PersistenceError(errorOperationStore, errorSubjectAccount, code, err)
}

func scanEntries(rows pgx.Rows) ([]ledger.Entry, error) {
	defer rows.Close()
	var entries []ledger.Entry
	for rows.Next() {
		var (
			entryIDValue        string
			customerIDValue     string
			sequence            int64
			transactionValue    string
			paymentKindValue    string
			previousCents       int64
			amountCents         int64
			remainingCents      int64
			cashCents           int64
			creditCents         int64
			accountTypeValue    string
			creditLimitCents    int64
			date                time.Time
			storeIDValue        string
			addedByValue        string
			note                string
			saleIDValue         string
			slip                string
			idempotencyKeyValue string
			metadataValue       string
		)
		if err := rows.Scan(
			&entryIDValue, &customerIDValue, &sequence, &transactionValue, &paymentKindValue,
			&previousCents, &amountCents, &remainingCents, &cashCents, &creditCents,
			&accountTypeValue, &creditLimitCents, &date, &storeIDValue, &addedByValue, &note,
			&saleIDValue, &slip, &idempotencyKeyValue, &metadataValue,
		); err != nil {
			return nil, ledger.PersistenceError(errorOperationStore, errorSubjectEntry, errorCodeList, err)
		}
		entry, err := buildEntry(entryRow{
			entryID:          entryIDValue,
			customerID:       customerIDValue,
			sequence:         sequence,
			transactionType:  transactionValue,
			paymentKind:      paymentKindValue,
			previousCents:    previousCents,
			amountCents:      amountCents,
			remainingCents:   remainingCents,
			cashCents:        cashCents,
			creditCents:      creditCents,
			accountType:      accountTypeValue,
			creditLimitCents: creditLimitCents,
			date:             date,
			storeID:          storeIDValue,
			addedBy:          addedByValue,
			note:             note,
			saleID:           saleIDValue,
			slip:             slip,
			idempotencyKey:   idempotencyKeyValue,
			metadata:         metadataValue,
		})
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, ledger.PersistenceError(errorOperationStore, errorSubjectEntry, errorCodeList, err)
	}
	return entries, nil
}

type entryRow struct {
	entryID          string
	customerID       string
	sequence         int64
	transactionType  string
	paymentKind      string
	previousCents    int64
	amountCents      int64
	remainingCents   int64
	cashCents        int64
	creditCents      int64
	accountType      string
	creditLimitCents int64
	date             time.Time
	storeID          string
	addedBy          string
	note             string
	saleID           string
	slip             string
	idempotencyKey   string
	metadata         string
}

func buildEntry(row entryRow) (ledger.Entry, error) {
	entryID, err := ledger.NewEntryID(row.entryID)
	if err != nil {
		return ledger.Entry{}, err
	}
	customerID, err := ledger.NewCustomerID(row.customerID)
	if err != nil {
		return ledger.Entry{}, err
	}
	transactionType, err := ledger.ParseTransactionType(row.transactionType)
	if err != nil {
		return ledger.Entry{}, err
	}
	paymentKind, err := ledger.ParsePaymentKind(row.paymentKind)
	if err != nil {
		return ledger.Entry{}, err
	}
	paymentType, err := ledger.NewPaymentType(paymentKind, row.cashCents, row.creditCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	accountType, err := ledger.ParseAccountType(row.accountType)
	if err != nil {
		return ledger.Entry{}, err
	}
	cashAmount, err := ledger.NewAmountCents(row.cashCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	creditAmount, err := ledger.NewAmountCents(row.creditCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	creditLimit, err := ledger.NewAmountCents(row.creditLimitCents)
	if err != nil {
		return ledger.Entry{}, err
	}
	storeID, err := ledger.NewStoreID(row.storeID)
	if err != nil {
		return ledger.Entry{}, err
	}
	addedBy, err := ledger.NewActorID(row.addedBy)
	if err != nil {
		return ledger.Entry{}, err
	}
	var saleID *ledger.SaleID
	if row.saleID != "" {
		parsed, err := ledger.NewSaleID(row.saleID)
		if err != nil {
			return ledger.Entry{}, err
		}
		saleID = &parsed
	}
	var idempotencyKey *ledger.IdempotencyKey
	if row.idempotencyKey != "" {
		parsed, err := ledger.NewIdempotencyKey(row.idempotencyKey)
		if err != nil {
			return ledger.Entry{}, err
		}
		idempotencyKey = &parsed
	}
	metadata, err := ledger.NewMetadataJSON(row.metadata)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.NewEntry(ledger.EntryInput{
		EntryID:          entryID,
		CustomerID:       customerID,
		Sequence:         row.sequence,
		TransactionType:  transactionType,
		PaymentType:      paymentType,
		PreviousBalance:  ledger.SignedAmountCents(row.previousCents),
		Amount:           ledger.SignedAmountCents(row.amountCents),
		RemainingBalance: ledger.SignedAmountCents(row.remainingCents),
		CashAmount:       cashAmount,
		CreditAmount:     creditAmount,
		AccountType:      accountType,
		CreditLimit:      creditLimit,
		Date:             row.date,
		StoreID:          storeID,
		AddedBy:          addedBy,
		Note:             row.note,
		SaleID:           saleID,
		Slip:             row.slip,
		IdempotencyKey:   idempotencyKey,
		Metadata:         metadata,
	})
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}

// isLockNotAvailable reports a postgres lock_timeout expiry.
func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailableCode
}
