package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestIdentifierConstructors(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name    string
		build   func(string) (string, error)
		input   string
		wantErr error
		wantVal string
	}{
		{name: "customer valid", build: func(raw string) (string, error) {
			value, err := NewCustomerID(raw)
			return value.String(), err
		}, input: " customer-7 ", wantVal: "customer-7"},
		{name: "customer empty", build: func(raw string) (string, error) {
			value, err := NewCustomerID(raw)
			return value.String(), err
		}, input: "  ", wantErr: ErrInvalidCustomerID},
		{name: "store empty", build: func(raw string) (string, error) {
			value, err := NewStoreID(raw)
			return value.String(), err
		}, input: "", wantErr: ErrInvalidStoreID},
		{name: "sale valid", build: func(raw string) (string, error) {
			value, err := NewSaleID(raw)
			return value.String(), err
		}, input: "sale-9", wantVal: "sale-9"},
		{name: "entry empty", build: func(raw string) (string, error) {
			value, err := NewEntryID(raw)
			return value.String(), err
		}, input: " ", wantErr: ErrInvalidEntryID},
		{name: "idempotency empty", build: func(raw string) (string, error) {
			value, err := NewIdempotencyKey(raw)
			return value.String(), err
		}, input: "", wantErr: ErrInvalidIdempotencyKey},
	}
	for _, tc := range cases {
		tc := tc
		test.Run(tc.name, func(test *testing.T) {
			test.Parallel()
			result, err := tc.build(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					test.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if result != tc.wantVal {
				test.Fatalf("expected %q, got %q", tc.wantVal, result)
			}
		})
	}
}

func TestNewPositiveAmountCents(test *testing.T) {
	test.Parallel()
	if _, err := NewPositiveAmountCents(0); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := NewPositiveAmountCents(-5); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := NewAmountCents(-1); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	zero, err := NewAmountCents(0)
	if err != nil || zero != 0 {
		test.Fatalf("expected zero amount, got %d (%v)", zero, err)
	}
}

func TestAmountFormatting(test *testing.T) {
	test.Parallel()
	if AmountCents(1250).String() != "12.50" {
		test.Fatalf("expected 12.50, got %s", AmountCents(1250).String())
	}
	if SignedAmountCents(-5).String() != "-0.05" {
		test.Fatalf("expected -0.05, got %s", SignedAmountCents(-5).String())
	}
	if !PositiveAmountCents(100).Decimal().Equal(decimal.NewFromInt(1)) {
		test.Fatalf("expected decimal 1")
	}
}

func TestCentsFromDecimal(test *testing.T) {
	test.Parallel()
	cents, err := CentsFromDecimal(decimal.RequireFromString("19.99"))
	if err != nil || cents != 1999 {
		test.Fatalf("expected 1999, got %d (%v)", cents, err)
	}
	if _, err := CentsFromDecimal(decimal.RequireFromString("0.001")); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestNewMetadataJSON(test *testing.T) {
	test.Parallel()
	meta, err := NewMetadataJSON("")
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if meta.String() != "{}" {
		test.Fatalf("expected default metadata to be '{}', got %q", meta.String())
	}
	_, err = NewMetadataJSON("not-json")
	if !errors.Is(err, ErrInvalidMetadataJSON) {
		test.Fatalf("expected ErrInvalidMetadataJSON, got %v", err)
	}
}

func TestNewActorRequiresStore(test *testing.T) {
	test.Parallel()
	if _, err := NewActor("cashier-1", "cashier", " "); !errors.Is(err, ErrInvalidActor) {
		test.Fatalf("expected ErrInvalidActor, got %v", err)
	}
	actor, err := NewActor(" cashier-1 ", " manager ", "store-2")
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if actor.ID.String() != "cashier-1" || actor.Role != "manager" || actor.StoreID.String() != "store-2" {
		test.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseEnums(test *testing.T) {
	test.Parallel()
	if operation, err := ParseOperation(" ADD "); err != nil || operation != OperationAdd {
		test.Fatalf("expected add, got %q (%v)", operation, err)
	}
	if _, err := ParseOperation("refund"); !errors.Is(err, ErrInvalidOperation) {
		test.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
	if _, err := ParseAccountType("store-credit"); !errors.Is(err, ErrInvalidAccountType) {
		test.Fatalf("expected ErrInvalidAccountType, got %v", err)
	}
	if transactionType, err := ParseTransactionType("credit-limit-changed"); err != nil || transactionType != TransactionCreditLimitChanged {
		test.Fatalf("unexpected transaction type %q (%v)", transactionType, err)
	}
}
