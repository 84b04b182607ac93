package gormstore

import (
	"time"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	indexEntrySequence    = "uniq_ledger_entries_customer_sequence"
	indexEntryIdempotency = "uniq_ledger_entries_customer_idempotency"
)

// CustomerAccount represents the customer_accounts table.
type CustomerAccount struct {
	CustomerID       string    `gorm:"primaryKey;size:128"`
	StoreID          string    `gorm:"size:128;not null"`
	AccountType      string    `gorm:"size:16;not null"`
	CreditLimitCents int64     `gorm:"not null"`
	UsedAmountCents  int64     `gorm:"not null"`
	BalanceCents     int64     `gorm:"not null"`
	Version          int64     `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (CustomerAccount) TableName() string { return "customer_accounts" }

// LedgerEntry mirrors the ledger_entries table. Rows are written once.
type LedgerEntry struct {
	EntryID               string         `gorm:"primaryKey;size:64"`
	CustomerID            string         `gorm:"size:128;not null;index:uniq_ledger_entries_customer_sequence,unique,priority:1;index:uniq_ledger_entries_customer_idempotency,unique,priority:1;index:idx_ledger_entries_customer_date,priority:1"`
	Sequence              int64          `gorm:"not null;index:uniq_ledger_entries_customer_sequence,unique,priority:2"`
	TransactionType       string         `gorm:"size:32;not null"`
	PaymentKind           string         `gorm:"size:16;not null"`
	PreviousBalanceCents  int64          `gorm:"not null"`
	AmountCents           int64          `gorm:"not null"`
	RemainingBalanceCents int64          `gorm:"not null"`
	CashAmountCents       int64          `gorm:"not null"`
	CreditAmountCents     int64          `gorm:"not null"`
	AccountType           string         `gorm:"size:16;not null"`
	CreditLimitCents      int64          `gorm:"not null"`
	Date                  time.Time      `gorm:"not null;index:idx_ledger_entries_customer_date,priority:2"`
	StoreID               string         `gorm:"size:128;not null"`
	AddedBy               string         `gorm:"size:128;not null"`
	Note                  string         `gorm:"type:text;not null"`
	SaleID                *string        `gorm:"size:128;index"`
	Slip                  string         `gorm:"size:256;not null"`
	IdempotencyKey        *string        `gorm:"size:128;index:uniq_ledger_entries_customer_idempotency,unique,priority:2"`
	Metadata              datatypes.JSON `gorm:"not null"`
	CreatedAt             time.Time      `gorm:"not null"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeUpdate(tx *gorm.DB) error {
	return ledger.ErrImmutableEntry
}

func (entry *LedgerEntry) BeforeDelete(tx *gorm.DB) error {
	return ledger.ErrImmutableEntry
}

// AutoMigrate creates or updates the ledger tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&CustomerAccount{}, &LedgerEntry{})
}
