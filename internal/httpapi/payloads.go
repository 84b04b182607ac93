package httpapi

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/shopspring/decimal"
)

type paymentRequest struct {
	Amount         decimal.Decimal  `json:"amount"`
	Operation      string           `json:"operation"`
	PaymentType    string           `json:"payment_type"`
	CashAmount     *decimal.Decimal `json:"cash_amount"`
	CreditAmount   *decimal.Decimal `json:"credit_amount"`
	Note           string           `json:"note"`
	Slip           string           `json:"slip"`
	IdempotencyKey string           `json:"idempotency_key"`
	Metadata       json.RawMessage  `json:"metadata"`
}

type saleRequest struct {
	SaleID         string           `json:"sale_id"`
	Total          decimal.Decimal  `json:"total"`
	PaymentType    string           `json:"payment_type"`
	CashAmount     *decimal.Decimal `json:"cash_amount"`
	CreditAmount   *decimal.Decimal `json:"credit_amount"`
	Note           string           `json:"note"`
	Slip           string           `json:"slip"`
	IdempotencyKey string           `json:"idempotency_key"`
	Metadata       json.RawMessage  `json:"metadata"`
}

type limitRequest struct {
	Limit *decimal.Decimal `json:"limit"`
}

type statePayload struct {
	AccountType     string `json:"account_type"`
	CreditLimit     string `json:"credit_limit"`
	UsedAmount      string `json:"used_amount"`
	Balance         string `json:"balance"`
	NetPosition     string `json:"net_position"`
	AvailableCredit string `json:"available_credit"`
}

type accountPayload struct {
	CustomerID string       `json:"customer_id"`
	StoreID    string       `json:"store_id"`
	State      statePayload `json:"state"`
	Version    int64        `json:"version"`
	UpdatedAt  string       `json:"updated_at,omitempty"`
}

type paymentTypePayload struct {
	Kind         string `json:"kind"`
	CashAmount   string `json:"cash_amount,omitempty"`
	CreditAmount string `json:"credit_amount,omitempty"`
}

type entryPayload struct {
	EntryID          string             `json:"entry_id"`
	Sequence         int64              `json:"sequence"`
	TransactionType  string             `json:"transaction_type"`
	PaymentType      paymentTypePayload `json:"payment_type"`
	PreviousBalance  string             `json:"previous_balance"`
	Amount           string             `json:"amount"`
	RemainingBalance string             `json:"remaining_balance"`
	CashAmount       string             `json:"cash_amount"`
	CreditAmount     string             `json:"credit_amount"`
	AccountType      string             `json:"account_type"`
	CreditLimit      string             `json:"credit_limit"`
	Date             string             `json:"date"`
	StoreID          string             `json:"store_id"`
	AddedBy          string             `json:"added_by"`
	Note             string             `json:"note"`
	SaleID           string             `json:"sale_id,omitempty"`
	Slip             string             `json:"slip,omitempty"`
	IdempotencyKey   string             `json:"idempotency_key,omitempty"`
	Metadata         json.RawMessage    `json:"metadata"`
}

type resultPayload struct {
	Account accountPayload `json:"account"`
	Entry   entryPayload   `json:"entry"`
}

type summaryPayload struct {
	TotalCreditUsed string `json:"total_credit_used"`
	TotalCashUsed   string `json:"total_cash_used"`
	Balance         string `json:"balance"`
	EntryCount      int    `json:"entry_count"`
}

type statementPayload struct {
	CustomerID string         `json:"customer_id"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Account    accountPayload `json:"account"`
	Summary    summaryPayload `json:"summary"`
	Entries    []entryPayload `json:"entries"`
}

type reconciliationPayload struct {
	CustomerID   string         `json:"customer_id"`
	Consistent   bool           `json:"consistent"`
	EntryCount   int            `json:"entry_count"`
	SumOfAmounts string         `json:"sum_of_amounts"`
	Stored       accountPayload `json:"stored"`
	Replayed     statePayload   `json:"replayed"`
	Mismatch     string         `json:"mismatch,omitempty"`
}

func newStatePayload(state ledger.AccountState) statePayload {
	return statePayload{
		AccountType:     state.Type.String(),
		CreditLimit:     state.Limit.String(),
		UsedAmount:      state.UsedAmount.String(),
		Balance:         state.Balance.String(),
		NetPosition:     state.NetPosition().String(),
		AvailableCredit: state.AvailableCredit().String(),
	}
}

func newAccountPayload(record ledger.AccountRecord) accountPayload {
	payload := accountPayload{
		CustomerID: record.CustomerID.String(),
		StoreID:    record.StoreID.String(),
		State:      newStatePayload(record.State),
		Version:    record.Version,
	}
	if !record.UpdatedAt.IsZero() {
		payload.UpdatedAt = record.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return payload
}

func newPaymentTypePayload(paymentType ledger.PaymentType) paymentTypePayload {
	if paymentType == nil {
		return paymentTypePayload{Kind: ledger.PaymentKindNone.String()}
	}
	payload := paymentTypePayload{Kind: paymentType.Kind().String()}
	if split, ok := paymentType.(ledger.SplitPayment); ok {
		payload.CashAmount = split.CashAmount.String()
		payload.CreditAmount = split.CreditAmount.String()
	}
	return payload
}

func newEntryPayload(entry ledger.Entry) entryPayload {
	payload := entryPayload{
		EntryID:          entry.EntryID().String(),
		Sequence:         entry.Sequence(),
		TransactionType:  entry.TransactionType().String(),
		PaymentType:      newPaymentTypePayload(entry.PaymentType()),
		PreviousBalance:  entry.PreviousBalance().String(),
		Amount:           entry.Amount().String(),
		RemainingBalance: entry.RemainingBalance().String(),
		CashAmount:       entry.CashAmount().String(),
		CreditAmount:     entry.CreditAmount().String(),
		AccountType:      entry.AccountType().String(),
		CreditLimit:      entry.CreditLimit().String(),
		Date:             entry.Date().UTC().Format(time.RFC3339Nano),
		StoreID:          entry.StoreID().String(),
		AddedBy:          entry.AddedBy().String(),
		Note:             entry.Note(),
		Slip:             entry.Slip(),
		Metadata:         json.RawMessage(entry.Metadata().String()),
	}
	if saleID, ok := entry.SaleID(); ok {
		payload.SaleID = saleID.String()
	}
	if key, ok := entry.IdempotencyKey(); ok {
		payload.IdempotencyKey = key.String()
	}
	return payload
}

func newEntryPayloads(entries []ledger.Entry) []entryPayload {
	payloads := make([]entryPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, newEntryPayload(entry))
	}
	return payloads
}

func newResultPayload(result ledger.Result) resultPayload {
	return resultPayload{
		Account: newAccountPayload(result.Account),
		Entry:   newEntryPayload(result.Entry),
	}
}

func newStatementPayload(statement ledger.Statement) statementPayload {
	return statementPayload{
		CustomerID: statement.CustomerID.String(),
		From:       statement.From.Format(time.RFC3339Nano),
		To:         statement.To.Format(time.RFC3339Nano),
		Account:    newAccountPayload(statement.Account),
		Summary: summaryPayload{
			TotalCreditUsed: statement.Summary.TotalCreditUsed.String(),
			TotalCashUsed:   statement.Summary.TotalCashUsed.String(),
			Balance:         statement.Summary.Balance.String(),
			EntryCount:      statement.Summary.EntryCount,
		},
		Entries: newEntryPayloads(statement.Entries),
	}
}

func newReconciliationPayload(reconciliation ledger.Reconciliation) reconciliationPayload {
	payload := reconciliationPayload{
		CustomerID:   reconciliation.CustomerID.String(),
		Consistent:   reconciliation.Consistent,
		EntryCount:   reconciliation.EntryCount,
		SumOfAmounts: reconciliation.SumOfAmounts.String(),
		Stored:       newAccountPayload(reconciliation.Stored),
		Replayed:     newStatePayload(reconciliation.Replayed),
	}
	if reconciliation.Mismatch != nil {
		payload.Mismatch = reconciliation.Mismatch.Error()
	}
	return payload
}

func positiveAmount(value decimal.Decimal) (ledger.PositiveAmountCents, error) {
	cents, err := ledger.CentsFromDecimal(value)
	if err != nil {
		return 0, err
	}
	return ledger.NewPositiveAmountCents(cents)
}

func amount(value decimal.Decimal) (ledger.AmountCents, error) {
	cents, err := ledger.CentsFromDecimal(value)
	if err != nil {
		return 0, err
	}
	return ledger.NewAmountCents(cents)
}

// paymentType returns nil when kind is empty so the service default applies.
func paymentType(kind string, cashAmount *decimal.Decimal, creditAmount *decimal.Decimal) (ledger.PaymentType, error) {
	if kind == "" {
		return nil, nil
	}
	parsed, err := ledger.ParsePaymentKind(kind)
	if err != nil {
		return nil, err
	}
	var cashCents, creditCents int64
	if cashAmount != nil {
		if cashCents, err = ledger.CentsFromDecimal(*cashAmount); err != nil {
			return nil, err
		}
	}
	if creditAmount != nil {
		if creditCents, err = ledger.CentsFromDecimal(*creditAmount); err != nil {
			return nil, err
		}
	}
	return ledger.NewPaymentType(parsed, cashCents, creditCents)
}

func idempotencyKey(raw string) (*ledger.IdempotencyKey, error) {
	if raw == "" {
		return nil, nil
	}
	key, err := ledger.NewIdempotencyKey(raw)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func metadata(raw json.RawMessage) (ledger.MetadataJSON, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		trimmed = nil
	}
	return ledger.NewMetadataJSON(string(trimmed))
}
