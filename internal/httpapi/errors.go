package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeUnauthorized    = "unauthorized"
	errorCodeInvalidPayload  = "invalid_payload"
	errorCodeUnknownCustomer = "unknown_customer"
	errorCodeUnavailable     = "unavailable"
	errorCodeInternal        = "internal"
)

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// ledgerErrorResponse maps a ledger error onto a status code and the error envelope.
func ledgerErrorResponse(err error) (int, gin.H) {
	kind := ledger.Classify(err)
	body := gin.H{
		"code":      string(kind),
		"message":   err.Error(),
		"retryable": ledger.IsRetryable(err),
	}
	status := http.StatusInternalServerError
	switch kind {
	case ledger.KindValidation:
		status = http.StatusBadRequest
		if errors.Is(err, ledger.ErrUnknownCustomer) {
			status = http.StatusNotFound
			body["code"] = errorCodeUnknownCustomer
		}
	case ledger.KindCreditLimitExceeded:
		status = http.StatusUnprocessableEntity
		var limitError *ledger.CreditLimitError
		if errors.As(err, &limitError) {
			body["limit"] = limitError.Limit.String()
			body["overage"] = limitError.Overage().String()
		}
	case ledger.KindConcurrencyConflict, ledger.KindDuplicate:
		status = http.StatusConflict
	case ledger.KindPersistence, ledger.KindCanceled:
		status = http.StatusServiceUnavailable
		body["code"] = errorCodeUnavailable
		body["message"] = "ledger storage unavailable"
	default:
		body["code"] = errorCodeInternal
		body["message"] = "internal error"
	}
	return status, gin.H{"error": body}
}

func (handler *Handler) respondError(ctx *gin.Context, err error) {
	status, body := ledgerErrorResponse(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("ledger request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Error(err))
	}
	ctx.JSON(status, body)
}

func (handler *Handler) respondInvalidPayload(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":      errorCodeInvalidPayload,
			"message":   err.Error(),
			"retryable": false,
		},
	})
}
