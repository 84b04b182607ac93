package ledger

import "time"

const (
	operationProcessPayment = "process_payment"
	operationRecordSale     = "record_sale"
	operationUpdateLimit    = "update_credit_limit"
	operationConvertCredit  = "convert_to_credit"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	defaultLockTimeout = 5 * time.Second
	amountDecimalPlace = 2

	errorOperationService   = "service"
	errorSubjectLock        = "lock"
	errorSubjectTransaction = "transaction"
	errorCodeTimeout        = "timeout"
	errorCodeCanceled       = "canceled"
)
