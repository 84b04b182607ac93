package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	storecreditv1 "github.com/MarkoPoloResearchLab/storecredit/api/storecredit/v1"
	"github.com/MarkoPoloResearchLab/storecredit/internal/auth"
	"github.com/MarkoPoloResearchLab/storecredit/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/dynamicpb"
	"gorm.io/gorm"
)

const (
	bufconnSize    = 1 << 20
	testSigningKey = "secret-key"
	testIssuer     = "storecredit-test"
	testCustomer   = "customer-1"
	testStore      = "store-1"
)

var testNow = time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)

type testClient struct {
	conn    *grpc.ClientConn
	ledger  *storecreditv1.LedgerServiceClient
	service *ledger.Service
	actor   ledger.Actor
	token   string
}

func startServer(test *testing.T) testClient {
	test.Helper()
	db, err := gorm.Open(sqlite.Open(test.TempDir()+"/storecredit.db"), &gorm.Config{})
	require.NoError(test, err)
	sqlDB, err := db.DB()
	require.NoError(test, err)
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(test, gormstore.AutoMigrate(db))

	store := gormstore.New(db)
	customerID, _ := ledger.NewCustomerID(testCustomer)
	storeID, _ := ledger.NewStoreID(testStore)
	_, err = store.RegisterCustomer(context.Background(), customerID, storeID)
	require.NoError(test, err)

	service, err := ledger.NewService(store, func() time.Time { return testNow })
	require.NoError(test, err)
	validator, err := auth.NewValidator(testSigningKey, testIssuer)
	require.NoError(test, err)
	actor, err := ledger.NewActor("cashier-1", "cashier", testStore)
	require.NoError(test, err)
	token, err := validator.IssueToken(actor, time.Hour)
	require.NoError(test, err)

	ledgerServer, err := NewLedgerServer(service, time.UTC)
	require.NoError(test, err)
	server := NewServer(ServerConfig{Actors: validator, Logger: zap.NewNop()}, ledgerServer)

	listener := bufconn.Listen(bufconnSize)
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			test.Logf("gRPC server error: %v", serveErr)
		}
	}()
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(test, err)
	test.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})
	return testClient{
		conn:    conn,
		ledger:  storecreditv1.NewLedgerServiceClient(conn),
		service: service,
		actor:   actor,
		token:   token,
	}
}

func (client testClient) authorized() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), authorizationMetadataKey, "Bearer "+client.token)
}

func paymentRequest(test *testing.T, customer string, operation string, amountCents int64, kind string) *dynamicpb.Message {
	test.Helper()
	request := storecreditv1.New(storecreditv1.ProcessPaymentRequestMessage)
	storecreditv1.SetString(request, "customer_id", customer)
	storecreditv1.SetString(request, "operation", operation)
	storecreditv1.SetInt64(request, "amount_cents", amountCents)
	storecreditv1.SetString(request, "payment_kind", kind)
	return request
}

func errorInfo(test *testing.T, err error) *errdetails.ErrorInfo {
	test.Helper()
	st, ok := status.FromError(err)
	require.True(test, ok, "expected a status error, got %v", err)
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			return info
		}
	}
	require.FailNow(test, "status carries no ErrorInfo")
	return nil
}

func TestGetAccountReturnsRegisteredCustomer(test *testing.T) {
	client := startServer(test)
	request := storecreditv1.New(storecreditv1.GetAccountRequestMessage)
	storecreditv1.SetString(request, "customer_id", testCustomer)

	response, err := client.ledger.GetAccount(client.authorized(), request)
	require.NoError(test, err)

	account := storecreditv1.Message(response, "account")
	assert.Equal(test, testCustomer, storecreditv1.String(account, "customer_id"))
	assert.Equal(test, testStore, storecreditv1.String(account, "store_id"))
	state := storecreditv1.Message(account, "state")
	assert.Equal(test, "cash", storecreditv1.String(state, "account_type"))
	assert.Equal(test, int64(0), storecreditv1.Int64(state, "balance_cents"))
}

func TestProcessPaymentAddsToBalance(test *testing.T) {
	client := startServer(test)
	request := paymentRequest(test, testCustomer, "add", 2500, "")
	storecreditv1.SetString(request, "note", "deposit")
	storecreditv1.SetString(request, "idempotency_key", "pay-1")

	response, err := client.ledger.ProcessPayment(client.authorized(), request)
	require.NoError(test, err)

	state := storecreditv1.Message(storecreditv1.Message(response, "account"), "state")
	assert.Equal(test, int64(2500), storecreditv1.Int64(state, "balance_cents"))
	entry := storecreditv1.Message(response, "entry")
	assert.Equal(test, "cash", storecreditv1.String(entry, "payment_kind"))
	assert.Equal(test, int64(2500), storecreditv1.Int64(entry, "amount_cents"))
	assert.Equal(test, int64(2500), storecreditv1.Int64(entry, "remaining_balance_cents"))
	assert.Equal(test, "cashier-1", storecreditv1.String(entry, "added_by"))
	assert.Equal(test, "pay-1", storecreditv1.String(entry, "idempotency_key"))
	assert.Equal(test, testNow.Unix(), storecreditv1.Int64(entry, "created_unix_utc"))
}

func TestUpdateCreditLimitOnCreditAccount(test *testing.T) {
	client := startServer(test)
	customerID, _ := ledger.NewCustomerID(testCustomer)
	_, err := client.service.ConvertToCredit(context.Background(), customerID, 1000, client.actor)
	require.NoError(test, err)

	request := storecreditv1.New(storecreditv1.UpdateCreditLimitRequestMessage)
	storecreditv1.SetString(request, "customer_id", testCustomer)
	storecreditv1.SetInt64(request, "credit_limit_cents", 5000)

	response, err := client.ledger.UpdateCreditLimit(client.authorized(), request)
	require.NoError(test, err)
	state := storecreditv1.Message(storecreditv1.Message(response, "account"), "state")
	assert.Equal(test, "credit", storecreditv1.String(state, "account_type"))
	assert.Equal(test, int64(5000), storecreditv1.Int64(state, "credit_limit_cents"))
	assert.Equal(test, int64(5000), storecreditv1.Int64(state, "available_credit_cents"))
}

func TestGetStatementListsEntriesInRange(test *testing.T) {
	client := startServer(test)
	for index := 0; index < 2; index++ {
		_, err := client.ledger.ProcessPayment(client.authorized(), paymentRequest(test, testCustomer, "add", 1000, "cash"))
		require.NoError(test, err)
	}
	request := storecreditv1.New(storecreditv1.GetStatementRequestMessage)
	storecreditv1.SetString(request, "customer_id", testCustomer)
	storecreditv1.SetString(request, "start_date", "2024-03-01")
	storecreditv1.SetString(request, "end_date", "2024-03-31")

	response, err := client.ledger.GetStatement(client.authorized(), request)
	require.NoError(test, err)
	assert.Equal(test, int64(2), storecreditv1.Int64(response, "entry_count"))
	assert.Equal(test, int64(2000), storecreditv1.Int64(response, "balance_cents"))
	entries := storecreditv1.List(response, "entries")
	require.Len(test, entries, 2)
	assert.Equal(test, int64(2), storecreditv1.Int64(entries[0], "sequence"), "newest first")
	assert.Equal(test, int64(1), storecreditv1.Int64(entries[1], "sequence"))
}

func TestLedgerErrorsMapToStatusCodes(test *testing.T) {
	testCases := []struct {
		name       string
		request    func(client testClient) (*dynamicpb.Message, error)
		wantCode   codes.Code
		wantReason string
	}{
		{
			name: "unknown customer",
			request: func(client testClient) (*dynamicpb.Message, error) {
				request := storecreditv1.New(storecreditv1.GetAccountRequestMessage)
				storecreditv1.SetString(request, "customer_id", "nobody")
				return client.ledger.GetAccount(client.authorized(), request)
			},
			wantCode:   codes.NotFound,
			wantReason: errorUnknownCustomer,
		},
		{
			name: "zero amount",
			request: func(client testClient) (*dynamicpb.Message, error) {
				return client.ledger.ProcessPayment(client.authorized(), paymentRequest(test, testCustomer, "add", 0, "cash"))
			},
			wantCode:   codes.InvalidArgument,
			wantReason: string(ledger.KindValidation),
		},
		{
			name: "bad operation",
			request: func(client testClient) (*dynamicpb.Message, error) {
				return client.ledger.ProcessPayment(client.authorized(), paymentRequest(test, testCustomer, "refund", 100, "cash"))
			},
			wantCode:   codes.InvalidArgument,
			wantReason: string(ledger.KindValidation),
		},
		{
			name: "cash shortfall",
			request: func(client testClient) (*dynamicpb.Message, error) {
				return client.ledger.ProcessPayment(client.authorized(), paymentRequest(test, testCustomer, "exclude", 500, "cash"))
			},
			wantCode:   codes.FailedPrecondition,
			wantReason: string(ledger.KindValidation),
		},
		{
			name: "limit on cash account",
			request: func(client testClient) (*dynamicpb.Message, error) {
				request := storecreditv1.New(storecreditv1.UpdateCreditLimitRequestMessage)
				storecreditv1.SetString(request, "customer_id", testCustomer)
				storecreditv1.SetInt64(request, "credit_limit_cents", 1000)
				return client.ledger.UpdateCreditLimit(client.authorized(), request)
			},
			wantCode:   codes.FailedPrecondition,
			wantReason: string(ledger.KindValidation),
		},
		{
			name: "malformed statement date",
			request: func(client testClient) (*dynamicpb.Message, error) {
				request := storecreditv1.New(storecreditv1.GetStatementRequestMessage)
				storecreditv1.SetString(request, "customer_id", testCustomer)
				storecreditv1.SetString(request, "start_date", "03/01/2024")
				storecreditv1.SetString(request, "end_date", "2024-03-31")
				return client.ledger.GetStatement(client.authorized(), request)
			},
			wantCode:   codes.InvalidArgument,
			wantReason: string(ledger.KindValidation),
		},
		{
			name: "duplicate idempotency key",
			request: func(client testClient) (*dynamicpb.Message, error) {
				request := paymentRequest(test, testCustomer, "add", 100, "cash")
				storecreditv1.SetString(request, "idempotency_key", "dup-1")
				if _, err := client.ledger.ProcessPayment(client.authorized(), request); err != nil {
					return nil, fmt.Errorf("first payment: %w", err)
				}
				return client.ledger.ProcessPayment(client.authorized(), request)
			},
			wantCode:   codes.AlreadyExists,
			wantReason: string(ledger.KindDuplicate),
		},
	}

	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			client := startServer(test)
			_, err := testCase.request(client)
			require.Error(test, err)
			assert.Equal(test, testCase.wantCode, status.Code(err), "status: %v", err)
			info := errorInfo(test, err)
			assert.Equal(test, testCase.wantReason, info.GetReason())
			assert.Equal(test, errorDomain, info.GetDomain())
			assert.Equal(test, "false", info.GetMetadata()[detailRetryable])
		})
	}
}

func TestCreditLimitRejectionCarriesLimitDetails(test *testing.T) {
	client := startServer(test)
	customerID, _ := ledger.NewCustomerID(testCustomer)
	_, err := client.service.ConvertToCredit(context.Background(), customerID, 1000, client.actor)
	require.NoError(test, err)

	_, err = client.ledger.ProcessPayment(client.authorized(), paymentRequest(test, testCustomer, "exclude", 1500, "credit"))
	require.Error(test, err)
	assert.Equal(test, codes.FailedPrecondition, status.Code(err))
	info := errorInfo(test, err)
	assert.Equal(test, string(ledger.KindCreditLimitExceeded), info.GetReason())
	assert.Equal(test, "1000", info.GetMetadata()[detailLimitCents])
	assert.Equal(test, "500", info.GetMetadata()[detailOverageCents])
}

func TestRequestsWithoutValidTokenAreUnauthenticated(test *testing.T) {
	client := startServer(test)
	testCases := []struct {
		name string
		ctx  context.Context
	}{
		{name: "no metadata", ctx: context.Background()},
		{name: "not bearer", ctx: metadata.AppendToOutgoingContext(context.Background(), authorizationMetadataKey, "Basic abc")},
		{name: "bad signature", ctx: metadata.AppendToOutgoingContext(context.Background(), authorizationMetadataKey, "Bearer not-a-jwt")},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			_, err := client.ledger.ProcessPayment(testCase.ctx, paymentRequest(test, testCustomer, "add", 100, "cash"))
			assert.Equal(test, codes.Unauthenticated, status.Code(err))
		})
	}

	request := storecreditv1.New(storecreditv1.GetAccountRequestMessage)
	storecreditv1.SetString(request, "customer_id", testCustomer)
	response, err := client.ledger.GetAccount(client.authorized(), request)
	require.NoError(test, err)
	state := storecreditv1.Message(storecreditv1.Message(response, "account"), "state")
	assert.Equal(test, int64(0), storecreditv1.Int64(state, "balance_cents"), "rejected calls must not write")
}

func TestHealthCheckSkipsAuthentication(test *testing.T) {
	client := startServer(test)
	healthClient := healthpb.NewHealthClient(client.conn)

	response, err := healthClient.Check(context.Background(), &healthpb.HealthCheckRequest{Service: storecreditv1.ServiceName})
	require.NoError(test, err)
	assert.Equal(test, healthpb.HealthCheckResponse_SERVING, response.GetStatus())
}

func TestMapToGRPCError(test *testing.T) {
	deadlineCanceled := ledger.WrapError("service", "lock", "canceled",
		fmt.Errorf("%w: %w", ledger.ErrOperationCanceled, context.DeadlineExceeded))
	testCases := []struct {
		name          string
		source        error
		wantCode      codes.Code
		wantMessage   string
		wantRetryable string
	}{
		{name: "lock timeout", source: ledger.ErrLockTimeout, wantCode: codes.Aborted, wantRetryable: "true"},
		{name: "version conflict", source: ledger.ErrConcurrencyConflict, wantCode: codes.Aborted, wantRetryable: "true"},
		{name: "storage down", source: ledger.PersistenceError("store", "account", "load", errors.New("connection refused")), wantCode: codes.Unavailable, wantMessage: errorUnavailable, wantRetryable: "true"},
		{name: "caller canceled", source: fmt.Errorf("%w: %w", ledger.ErrOperationCanceled, context.Canceled), wantCode: codes.Canceled, wantRetryable: "true"},
		{name: "caller deadline", source: deadlineCanceled, wantCode: codes.DeadlineExceeded, wantRetryable: "true"},
		{name: "invalid balance", source: ledger.ErrInvalidBalance, wantCode: codes.InvalidArgument, wantRetryable: "false"},
		{name: "type transition", source: ledger.ErrAccountTypeTransition, wantCode: codes.FailedPrecondition, wantRetryable: "false"},
		{name: "unclassified", source: errors.New("boom"), wantCode: codes.Internal, wantMessage: errorInternal, wantRetryable: "false"},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			err := mapToGRPCError(testCase.source)
			st, ok := status.FromError(err)
			require.True(test, ok)
			assert.Equal(test, testCase.wantCode, st.Code())
			if testCase.wantMessage != "" {
				assert.Equal(test, testCase.wantMessage, st.Message())
			}
			assert.Equal(test, testCase.wantRetryable, errorInfo(test, err).GetMetadata()[detailRetryable])
		})
	}
}

func TestServeListenerStopsOnCancel(test *testing.T) {
	ledgerServer, err := NewLedgerServer(&ledger.Service{}, nil)
	require.NoError(test, err)
	server := NewServer(ServerConfig{}, ledgerServer)
	listener := bufconn.Listen(bufconnSize)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveListener(ctx, zap.NewNop(), listener, server) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(test, err)
	case <-time.After(5 * time.Second):
		test.Fatal("server did not stop after cancel")
	}
}

func TestNewLedgerServerRejectsNilService(test *testing.T) {
	_, err := NewLedgerServer(nil, time.UTC)
	assert.Error(test, err)
}
