// Package storecreditv1 describes the storecredit.v1 gRPC API.
//
// The descriptor below mirrors ledger.proto and is registered with the global
// protobuf registry, so messages are handled as dynamicpb values and server
// reflection can serve the schema.
package storecreditv1

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	FileName    = "storecredit/v1/ledger.proto"
	PackageName = "storecredit.v1"
	ServiceName = PackageName + ".LedgerService"

	GetAccountMethod        = "/" + ServiceName + "/GetAccount"
	ProcessPaymentMethod    = "/" + ServiceName + "/ProcessPayment"
	UpdateCreditLimitMethod = "/" + ServiceName + "/UpdateCreditLimit"
	GetStatementMethod      = "/" + ServiceName + "/GetStatement"
)

// Message names.
const (
	AccountStateMessage             protoreflect.Name = "AccountState"
	AccountMessage                  protoreflect.Name = "Account"
	EntryMessage                    protoreflect.Name = "Entry"
	GetAccountRequestMessage        protoreflect.Name = "GetAccountRequest"
	AccountResponseMessage          protoreflect.Name = "AccountResponse"
	ProcessPaymentRequestMessage    protoreflect.Name = "ProcessPaymentRequest"
	UpdateCreditLimitRequestMessage protoreflect.Name = "UpdateCreditLimitRequest"
	MutationResponseMessage         protoreflect.Name = "MutationResponse"
	GetStatementRequestMessage      protoreflect.Name = "GetStatementRequest"
	StatementResponseMessage        protoreflect.Name = "StatementResponse"
)

// File is the storecredit.v1 file descriptor.
var File = mustRegisterFile()

// New returns an empty message of the named type.
func New(name protoreflect.Name) *dynamicpb.Message {
	descriptor := File.Messages().ByName(name)
	if descriptor == nil {
		panic(fmt.Sprintf("storecreditv1: unknown message %s", name))
	}
	return dynamicpb.NewMessage(descriptor)
}

func mustRegisterFile() protoreflect.FileDescriptor {
	file, err := protodesc.NewFile(fileDescriptorProto(), protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("storecreditv1: build descriptor: %v", err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(file); err != nil {
		panic(fmt.Sprintf("storecreditv1: register descriptor: %v", err))
	}
	return file
}

func fileDescriptorProto() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(FileName),
		Package: proto.String(PackageName),
		Syntax:  proto.String("proto3"),
		Options: &descriptorpb.FileOptions{
			GoPackage: proto.String("github.com/MarkoPoloResearchLab/storecredit/api/storecredit/v1;storecreditv1"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			message(AccountStateMessage,
				scalar("account_type", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("credit_limit_cents", 2, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("used_amount_cents", 3, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("balance_cents", 4, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("net_position_cents", 5, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("available_credit_cents", 6, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			),
			message(AccountMessage,
				scalar("customer_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("store_id", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				nested("state", 3, AccountStateMessage),
				scalar("version", 4, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("updated_unix_utc", 5, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			),
			message(EntryMessage,
				scalar("entry_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("sequence", 2, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("transaction_type", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("payment_kind", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("previous_balance_cents", 5, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("amount_cents", 6, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("remaining_balance_cents", 7, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("cash_amount_cents", 8, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("credit_amount_cents", 9, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("account_type", 10, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("credit_limit_cents", 11, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("created_unix_utc", 12, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("store_id", 13, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("added_by", 14, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("note", 15, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("sale_id", 16, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("slip", 17, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("idempotency_key", 18, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("metadata_json", 19, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message(GetAccountRequestMessage,
				scalar("customer_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message(AccountResponseMessage,
				nested("account", 1, AccountMessage),
			),
			message(ProcessPaymentRequestMessage,
				scalar("customer_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("operation", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("amount_cents", 3, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("payment_kind", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("cash_amount_cents", 5, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("credit_amount_cents", 6, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("note", 7, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("slip", 8, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("idempotency_key", 9, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("metadata_json", 10, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message(UpdateCreditLimitRequestMessage,
				scalar("customer_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("credit_limit_cents", 2, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			),
			message(MutationResponseMessage,
				nested("account", 1, AccountMessage),
				nested("entry", 2, EntryMessage),
			),
			message(GetStatementRequestMessage,
				scalar("customer_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("start_date", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("end_date", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			),
			message(StatementResponseMessage,
				scalar("customer_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				scalar("from_unix_utc", 2, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("to_unix_utc", 3, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				nested("account", 4, AccountMessage),
				scalar("total_credit_used_cents", 5, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("total_cash_used_cents", 6, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("balance_cents", 7, descriptorpb.FieldDescriptorProto_TYPE_INT64),
				scalar("entry_count", 8, descriptorpb.FieldDescriptorProto_TYPE_INT32),
				repeated(nested("entries", 9, EntryMessage)),
			),
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("LedgerService"),
			Method: []*descriptorpb.MethodDescriptorProto{
				method("GetAccount", GetAccountRequestMessage, AccountResponseMessage),
				method("ProcessPayment", ProcessPaymentRequestMessage, MutationResponseMessage),
				method("UpdateCreditLimit", UpdateCreditLimitRequestMessage, MutationResponseMessage),
				method("GetStatement", GetStatementRequestMessage, StatementResponseMessage),
			},
		}},
	}
}

func message(name protoreflect.Name, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(string(name)), Field: fields}
}

func scalar(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   kind.Enum(),
	}
}

func nested(name string, number int32, messageName protoreflect.Name) *descriptorpb.FieldDescriptorProto {
	field := scalar(name, number, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE)
	field.TypeName = proto.String(qualified(messageName))
	return field
}

func repeated(field *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	field.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return field
}

func method(name string, input protoreflect.Name, output protoreflect.Name) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(qualified(input)),
		OutputType: proto.String(qualified(output)),
	}
}

func qualified(name protoreflect.Name) string {
	return "." + PackageName + "." + string(name)
}
