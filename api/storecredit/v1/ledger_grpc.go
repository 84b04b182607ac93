package storecreditv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// LedgerServiceServer is the server API for storecredit.v1.LedgerService.
type LedgerServiceServer interface {
	GetAccount(ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error)
	ProcessPayment(ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error)
	UpdateCreditLimit(ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error)
	GetStatement(ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error)
}

type unaryCall func(server LedgerServiceServer, ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error)

// LedgerServiceDesc describes storecredit.v1.LedgerService for grpc.Server.
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetAccount",
			Handler: unaryHandler(GetAccountMethod, GetAccountRequestMessage, func(server LedgerServiceServer, ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error) {
				return server.GetAccount(ctx, request)
			}),
		},
		{
			MethodName: "ProcessPayment",
			Handler: unaryHandler(ProcessPaymentMethod, ProcessPaymentRequestMessage, func(server LedgerServiceServer, ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error) {
				return server.ProcessPayment(ctx, request)
			}),
		},
		{
			MethodName: "UpdateCreditLimit",
			Handler: unaryHandler(UpdateCreditLimitMethod, UpdateCreditLimitRequestMessage, func(server LedgerServiceServer, ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error) {
				return server.UpdateCreditLimit(ctx, request)
			}),
		},
		{
			MethodName: "GetStatement",
			Handler: unaryHandler(GetStatementMethod, GetStatementRequestMessage, func(server LedgerServiceServer, ctx context.Context, request *dynamicpb.Message) (*dynamicpb.Message, error) {
				return server.GetStatement(ctx, request)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: FileName,
}

// RegisterLedgerServiceServer registers server on registrar.
func RegisterLedgerServiceServer(registrar grpc.ServiceRegistrar, server LedgerServiceServer) {
	registrar.RegisterService(&LedgerServiceDesc, server)
}

func unaryHandler(fullMethod string, input protoreflect.Name, call unaryCall) func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		request := New(input)
		if err := decode(request); err != nil {
			return nil, err
		}
		ledgerServer := server.(LedgerServiceServer)
		if interceptor == nil {
			return call(ledgerServer, ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethod}
		handler := func(ctx context.Context, request any) (any, error) {
			return call(ledgerServer, ctx, request.(*dynamicpb.Message))
		}
		return interceptor(ctx, request, info, handler)
	}
}

// LedgerServiceClient calls storecredit.v1.LedgerService over conn.
type LedgerServiceClient struct {
	conn grpc.ClientConnInterface
}

// NewLedgerServiceClient returns a client bound to conn.
func NewLedgerServiceClient(conn grpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{conn: conn}
}

func (client *LedgerServiceClient) GetAccount(ctx context.Context, request *dynamicpb.Message, options ...grpc.CallOption) (*dynamicpb.Message, error) {
	return client.invoke(ctx, GetAccountMethod, AccountResponseMessage, request, options)
}

func (client *LedgerServiceClient) ProcessPayment(ctx context.Context, request *dynamicpb.Message, options ...grpc.CallOption) (*dynamicpb.Message, error) {
	return client.invoke(ctx, ProcessPaymentMethod, MutationResponseMessage, request, options)
}

func (client *LedgerServiceClient) UpdateCreditLimit(ctx context.Context, request *dynamicpb.Message, options ...grpc.CallOption) (*dynamicpb.Message, error) {
	return client.invoke(ctx, UpdateCreditLimitMethod, MutationResponseMessage, request, options)
}

func (client *LedgerServiceClient) GetStatement(ctx context.Context, request *dynamicpb.Message, options ...grpc.CallOption) (*dynamicpb.Message, error) {
	return client.invoke(ctx, GetStatementMethod, StatementResponseMessage, request, options)
}

func (client *LedgerServiceClient) invoke(ctx context.Context, fullMethod string, output protoreflect.Name, request *dynamicpb.Message, options []grpc.CallOption) (*dynamicpb.Message, error) {
	response := New(output)
	if err := client.conn.Invoke(ctx, fullMethod, request, response, options...); err != nil {
		return nil, err
	}
	return response, nil
}
