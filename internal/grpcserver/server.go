// Package grpcserver exposes the customer credit ledger over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	storecreditv1 "github.com/MarkoPoloResearchLab/storecredit/api/storecredit/v1"
	"github.com/MarkoPoloResearchLab/storecredit/internal/auth"
	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	authorizationMetadataKey = "authorization"
	healthMethodPrefix       = "/grpc.health.v1.Health/"
)

// LedgerService is the part of ledger.Service the gRPC surface drives.
type LedgerService interface {
	Account(ctx context.Context, customerID ledger.CustomerID) (ledger.AccountRecord, error)
	ProcessPayment(ctx context.Context, request ledger.PaymentRequest, actor ledger.Actor) (ledger.Result, error)
	UpdateCreditLimit(ctx context.Context, customerID ledger.CustomerID, newLimit ledger.AmountCents, actor ledger.Actor) (ledger.Result, error)
	Statement(ctx context.Context, customerID ledger.CustomerID, dateRange ledger.DateRange) (ledger.Statement, error)
}

// ActorParser resolves a bearer token to the acting cashier.
type ActorParser interface {
	ParseActor(token string) (ledger.Actor, error)
}

// ServerConfig carries what NewServer needs beyond the ledger server.
type ServerConfig struct {
	Actors ActorParser
	Logger *zap.Logger
}

// LedgerServer implements storecredit.v1.LedgerService.
type LedgerServer struct {
	service  LedgerService
	location *time.Location
}

// NewLedgerServer wires a LedgerServer. Statement dates are read in location.
func NewLedgerServer(service LedgerService, location *time.Location) (*LedgerServer, error) {
	if service == nil {
		return nil, fmt.Errorf("grpcserver: ledger service is nil")
	}
	if location == nil {
		location = time.UTC
	}
	return &LedgerServer{service: service, location: location}, nil
}

// NewServer builds a grpc.Server carrying the ledger, health and reflection services.
func NewServer(cfg ServerConfig, ledgerServer *LedgerServer) *grpc.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	server := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(logger),
		actorInterceptor(cfg.Actors),
	))
	storecreditv1.RegisterLedgerServiceServer(server, ledgerServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(storecreditv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	return server
}

// Serve listens on listenAddr and runs server until ctx is done.
func Serve(ctx context.Context, logger *zap.Logger, listenAddr string, server *grpc.Server) error {
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	logger.Info("gRPC server starting", zap.String("listen_addr", listenAddr))
	return serveListener(ctx, logger, listener, server)
}

func serveListener(ctx context.Context, logger *zap.Logger, listener net.Listener, server *grpc.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("gRPC shutdown requested")
		server.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}

func (server *LedgerServer) GetAccount(ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error) {
	customerID, err := ledger.NewCustomerID(storecreditv1.String(request, "customer_id"))
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	record, err := server.service.Account(ctx, customerID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	response := storecreditv1.New(storecreditv1.AccountResponseMessage)
	storecreditv1.SetMessage(response, "account", newAccountMessage(record))
	return response, nil
}

func (server *LedgerServer) ProcessPayment(ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error) {
	actor, err := requestActor(ctx)
	if err != nil {
		return nil, err
	}
	paymentRequest, err := buildPaymentRequest(request)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	result, err := server.service.ProcessPayment(ctx, paymentRequest, actor)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return newMutationResponse(result), nil
}

func (server *LedgerServer) UpdateCreditLimit(ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error) {
	actor, err := requestActor(ctx)
	if err != nil {
		return nil, err
	}
	customerID, err := ledger.NewCustomerID(storecreditv1.String(request, "customer_id"))
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	limit, err := ledger.NewAmountCents(storecreditv1.Int64(request, "credit_limit_cents"))
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	result, err := server.service.UpdateCreditLimit(ctx, customerID, limit, actor)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return newMutationResponse(result), nil
}

func (server *LedgerServer) GetStatement(ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error) {
	customerID, err := ledger.NewCustomerID(storecreditv1.String(request, "customer_id"))
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	dateRange, err := server.parseDateRange(storecreditv1.String(request, "start_date"), storecreditv1.String(request, "end_date"))
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	statement, err := server.service.Statement(ctx, customerID, dateRange)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return newStatementResponse(statement), nil
}

func (server *LedgerServer) parseDateRange(rawStart string, rawEnd string) (ledger.DateRange, error) {
	start, err := time.ParseInLocation(time.DateOnly, rawStart, server.location)
	if err != nil {
		return ledger.DateRange{}, fmt.Errorf("%w: start_date must be YYYY-MM-DD", ledger.ErrInvalidDateRange)
	}
	end, err := time.ParseInLocation(time.DateOnly, rawEnd, server.location)
	if err != nil {
		return ledger.DateRange{}, fmt.Errorf("%w: end_date must be YYYY-MM-DD", ledger.ErrInvalidDateRange)
	}
	return ledger.NewDateRange(start, end)
}

func buildPaymentRequest(request *dynamicpb.Message) (ledger.PaymentRequest, error) {
	customerID, err := ledger.NewCustomerID(storecreditv1.String(request, "customer_id"))
	if err != nil {
		return ledger.PaymentRequest{}, err
	}
	operation, err := ledger.ParseOperation(storecreditv1.String(request, "operation"))
	if err != nil {
		return ledger.PaymentRequest{}, err
	}
	amount, err := ledger.NewPositiveAmountCents(storecreditv1.Int64(request, "amount_cents"))
	if err != nil {
		return ledger.PaymentRequest{}, err
	}
	tender, err := paymentType(request)
	if err != nil {
		return ledger.PaymentRequest{}, err
	}
	meta, err := ledger.NewMetadataJSON(storecreditv1.String(request, "metadata_json"))
	if err != nil {
		return ledger.PaymentRequest{}, err
	}
	paymentRequest := ledger.PaymentRequest{
		CustomerID:  customerID,
		Operation:   operation,
		Amount:      amount,
		PaymentType: tender,
		Note:        storecreditv1.String(request, "note"),
		Slip:        storecreditv1.String(request, "slip"),
		Metadata:    meta,
	}
	if raw := storecreditv1.String(request, "idempotency_key"); raw != "" {
		key, err := ledger.NewIdempotencyKey(raw)
		if err != nil {
			return ledger.PaymentRequest{}, err
		}
		paymentRequest.IdempotencyKey = &key
	}
	return paymentRequest, nil
}

// paymentType returns nil for an empty kind so the service default applies.
func paymentType(request *dynamicpb.Message) (ledger.PaymentType, error) {
	raw := storecreditv1.String(request, "payment_kind")
	if raw == "" {
		return nil, nil
	}
	kind, err := ledger.ParsePaymentKind(raw)
	if err != nil {
		return nil, err
	}
	return ledger.NewPaymentType(kind,
		storecreditv1.Int64(request, "cash_amount_cents"),
		storecreditv1.Int64(request, "credit_amount_cents"))
}

func newStateMessage(state ledger.AccountState) *dynamicpb.Message {
	message := storecreditv1.New(storecreditv1.AccountStateMessage)
	storecreditv1.SetString(message, "account_type", state.Type.String())
	storecreditv1.SetInt64(message, "credit_limit_cents", state.Limit.Int64())
	storecreditv1.SetInt64(message, "used_amount_cents", state.UsedAmount.Int64())
	storecreditv1.SetInt64(message, "balance_cents", state.Balance.Int64())
	storecreditv1.SetInt64(message, "net_position_cents", state.NetPosition().Int64())
	storecreditv1.SetInt64(message, "available_credit_cents", state.AvailableCredit().Int64())
	return message
}

func newAccountMessage(record ledger.AccountRecord) *dynamicpb.Message {
	message := storecreditv1.New(storecreditv1.AccountMessage)
	storecreditv1.SetString(message, "customer_id", record.CustomerID.String())
	storecreditv1.SetString(message, "store_id", record.StoreID.String())
	storecreditv1.SetMessage(message, "state", newStateMessage(record.State))
	storecreditv1.SetInt64(message, "version", record.Version)
	if !record.UpdatedAt.IsZero() {
		storecreditv1.SetInt64(message, "updated_unix_utc", record.UpdatedAt.UTC().Unix())
	}
	return message
}

func newEntryMessage(entry ledger.Entry) *dynamicpb.Message {
	message := storecreditv1.New(storecreditv1.EntryMessage)
	storecreditv1.SetString(message, "entry_id", entry.EntryID().String())
	storecreditv1.SetInt64(message, "sequence", entry.Sequence())
	storecreditv1.SetString(message, "transaction_type", entry.TransactionType().String())
	kind := ledger.PaymentKindNone
	if entry.PaymentType() != nil {
		kind = entry.PaymentType().Kind()
	}
	storecreditv1.SetString(message, "payment_kind", kind.String())
	storecreditv1.SetInt64(message, "previous_balance_cents", entry.PreviousBalance().Int64())
	storecreditv1.SetInt64(message, "amount_cents", entry.Amount().Int64())
	storecreditv1.SetInt64(message, "remaining_balance_cents", entry.RemainingBalance().Int64())
	storecreditv1.SetInt64(message, "cash_amount_cents", entry.CashAmount().Int64())
	storecreditv1.SetInt64(message, "credit_amount_cents", entry.CreditAmount().Int64())
	storecreditv1.SetString(message, "account_type", entry.AccountType().String())
	storecreditv1.SetInt64(message, "credit_limit_cents", entry.CreditLimit().Int64())
	storecreditv1.SetInt64(message, "created_unix_utc", entry.Date().UTC().Unix())
	storecreditv1.SetString(message, "store_id", entry.StoreID().String())
	storecreditv1.SetString(message, "added_by", entry.AddedBy().String())
	storecreditv1.SetString(message, "note", entry.Note())
	storecreditv1.SetString(message, "slip", entry.Slip())
	storecreditv1.SetString(message, "metadata_json", entry.Metadata().String())
	if saleID, ok := entry.SaleID(); ok {
		storecreditv1.SetString(message, "sale_id", saleID.String())
	}
	if key, ok := entry.IdempotencyKey(); ok {
		storecreditv1.SetString(message, "idempotency_key", key.String())
	}
	return message
}

func newMutationResponse(result ledger.Result) *dynamicpb.Message {
	response := storecreditv1.New(storecreditv1.MutationResponseMessage)
	storecreditv1.SetMessage(response, "account", newAccountMessage(result.Account))
	storecreditv1.SetMessage(response, "entry", newEntryMessage(result.Entry))
	return response
}

func newStatementResponse(statement ledger.Statement) *dynamicpb.Message {
	response := storecreditv1.New(storecreditv1.StatementResponseMessage)
	storecreditv1.SetString(response, "customer_id", statement.CustomerID.String())
	storecreditv1.SetInt64(response, "from_unix_utc", statement.From.UTC().Unix())
	storecreditv1.SetInt64(response, "to_unix_utc", statement.To.UTC().Unix())
	storecreditv1.SetMessage(response, "account", newAccountMessage(statement.Account))
	storecreditv1.SetInt64(response, "total_credit_used_cents", statement.Summary.TotalCreditUsed.Int64())
	storecreditv1.SetInt64(response, "total_cash_used_cents", statement.Summary.TotalCashUsed.Int64())
	storecreditv1.SetInt64(response, "balance_cents", statement.Summary.Balance.Int64())
	storecreditv1.SetInt64(response, "entry_count", int64(statement.Summary.EntryCount))
	for _, entry := range statement.Entries {
		storecreditv1.AppendMessage(response, "entries", newEntryMessage(entry))
	}
	return response
}

type actorContextKey struct{}

func requestActor(ctx context.Context) (ledger.Actor, error) {
	actor, ok := ctx.Value(actorContextKey{}).(ledger.Actor)
	if !ok {
		return ledger.Actor{}, status.Error(codes.Unauthenticated, errorMissingActor)
	}
	return actor, nil
}

func actorInterceptor(actors ActorParser) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, request any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthMethodPrefix) {
			return handler(ctx, request)
		}
		if actors == nil {
			return nil, status.Error(codes.Unauthenticated, errorAuthNotConfigured)
		}
		incoming, _ := metadata.FromIncomingContext(ctx)
		values := incoming.Get(authorizationMetadataKey)
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, errorMissingBearerToken)
		}
		token, ok := auth.BearerToken(values[0])
		if !ok {
			return nil, status.Error(codes.Unauthenticated, errorMissingBearerToken)
		}
		actor, err := actors.ParseActor(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, errorInvalidBearerToken)
		}
		return handler(context.WithValue(ctx, actorContextKey{}, actor), request)
	}
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, request any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		response, err := handler(ctx, request)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("duration", time.Since(started)),
		}
		switch code {
		case codes.Internal, codes.Unavailable, codes.Unknown:
			logger.Error("gRPC request failed", append(fields, zap.Error(err))...)
		default:
			logger.Debug("gRPC request", fields...)
		}
		return response, err
	}
}
