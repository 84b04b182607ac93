package grpcserver

import (
	"context"
	"errors"
	"strconv"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	errorDomain = "storecredit.v1"

	errorUnknownCustomer    = "unknown_customer"
	errorUnavailable        = "ledger storage unavailable"
	errorInternal           = "internal error"
	errorMissingActor       = "missing actor"
	errorAuthNotConfigured  = "authentication is not configured"
	errorMissingBearerToken = "missing bearer token"
	errorInvalidBearerToken = "invalid bearer token"

	detailRetryable    = "retryable"
	detailLimitCents   = "limit_cents"
	detailOverageCents = "overage_cents"
)

// mapToGRPCError turns a ledger error into a status carrying an ErrorInfo
// whose reason is the ledger error kind.
func mapToGRPCError(source error) error {
	kind := ledger.Classify(source)
	details := map[string]string{detailRetryable: strconv.FormatBool(ledger.IsRetryable(source))}
	reason := string(kind)

	var code codes.Code
	message := source.Error()
	switch kind {
	case ledger.KindValidation:
		code = codes.InvalidArgument
		switch {
		case errors.Is(source, ledger.ErrUnknownCustomer):
			code = codes.NotFound
			reason = errorUnknownCustomer
		case errors.Is(source, ledger.ErrInsufficientFunds),
			errors.Is(source, ledger.ErrAccountNotCredit),
			errors.Is(source, ledger.ErrAccountTypeTransition):
			code = codes.FailedPrecondition
		}
	case ledger.KindCreditLimitExceeded:
		code = codes.FailedPrecondition
		var limitError *ledger.CreditLimitError
		if errors.As(source, &limitError) {
			details[detailLimitCents] = strconv.FormatInt(limitError.Limit.Int64(), 10)
			details[detailOverageCents] = strconv.FormatInt(limitError.Overage().Int64(), 10)
		}
	case ledger.KindConcurrencyConflict:
		code = codes.Aborted
	case ledger.KindDuplicate:
		code = codes.AlreadyExists
	case ledger.KindPersistence:
		code = codes.Unavailable
		message = errorUnavailable
	case ledger.KindCanceled:
		code = codes.Canceled
		if errors.Is(source, context.DeadlineExceeded) {
			code = codes.DeadlineExceeded
		}
	default:
		code = codes.Internal
		message = errorInternal
	}

	st := status.New(code, message)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain, Metadata: details})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}
