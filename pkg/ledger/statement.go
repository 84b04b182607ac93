package ledger

import (
	"context"
	"fmt"
	"time"
)

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	start time.Time
	end   time.Time
}

// NewDateRange validates that both dates are present and start is not after end.
// Only the calendar date of each bound is used.
func NewDateRange(start time.Time, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, fmt.Errorf("%w: start and end are required", ErrInvalidDateRange)
	}
	if calendarDay(start).After(calendarDay(end)) {
		return DateRange{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidDateRange,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return DateRange{start: start, end: end}, nil
}

// Start returns the first day of the range.
func (dateRange DateRange) Start() time.Time { return dateRange.start }

// End returns the last day of the range.
func (dateRange DateRange) End() time.Time { return dateRange.end }

// Window returns [start of first day, end of last day] in location.
func (dateRange DateRange) Window(location *time.Location) (time.Time, time.Time) {
	from := time.Date(dateRange.start.Year(), dateRange.start.Month(), dateRange.start.Day(), 0, 0, 0, 0, location)
	to := time.Date(dateRange.end.Year(), dateRange.end.Month(), dateRange.end.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), location)
	return from, to
}

func calendarDay(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}

// Summary aggregates a statement.
type Summary struct {
	// TotalCreditUsed sums the credit portion of sales in the window.
	TotalCreditUsed AmountCents
	// TotalCashUsed sums the cash portion of sales in the window.
	TotalCashUsed AmountCents
	// Balance is the account's net position at query time.
	Balance    SignedAmountCents
	EntryCount int
}

// Statement is a customer's history for a date range, newest entry first.
type Statement struct {
	CustomerID CustomerID
	From       time.Time
	To         time.Time
	Account    AccountRecord
	Summary    Summary
	Entries    []Entry
}

// Statement reads entries in the range and summarizes them. It never writes.
func (service *Service) Statement(ctx context.Context, customerID CustomerID, dateRange DateRange) (Statement, error) {
	if customerID.String() == "" {
		return Statement{}, fmt.Errorf("%w: empty value", ErrInvalidCustomerID)
	}
	if dateRange.start.IsZero() || dateRange.end.IsZero() {
		return Statement{}, fmt.Errorf("%w: start and end are required", ErrInvalidDateRange)
	}
	account, err := service.store.GetAccount(ctx, customerID)
	if err != nil {
		return Statement{}, err
	}
	from, to := dateRange.Window(service.location)
	entries, err := service.store.ListEntries(ctx, customerID, from.UTC(), to.UTC())
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		CustomerID: customerID,
		From:       from,
		To:         to,
		Account:    account,
		Summary:    Summarize(entries, account.State),
		Entries:    entries,
	}, nil
}

// Summarize totals sale portions across entries; balance comes from the current state.
func Summarize(entries []Entry, current AccountState) Summary {
	summary := Summary{
		Balance:    current.NetPosition(),
		EntryCount: len(entries),
	}
	for _, entry := range entries {
		if entry.TransactionType() != TransactionSale {
			continue
		}
		summary.TotalCreditUsed += entry.CreditAmount()
		summary.TotalCashUsed += entry.CashAmount()
	}
	return summary
}
