package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/gin-gonic/gin"
)

func (handler *Handler) customerID(ctx *gin.Context) (ledger.CustomerID, bool) {
	customerID, err := ledger.NewCustomerID(ctx.Param("customerID"))
	if err != nil {
		handler.respondError(ctx, err)
		return ledger.CustomerID{}, false
	}
	return customerID, true
}

// requestScope resolves the customer and actor shared by every customer route.
func (handler *Handler) requestScope(ctx *gin.Context) (ledger.CustomerID, ledger.Actor, bool) {
	actor, ok := getActor(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing actor"))
		return ledger.CustomerID{}, ledger.Actor{}, false
	}
	customerID, ok := handler.customerID(ctx)
	if !ok {
		return ledger.CustomerID{}, ledger.Actor{}, false
	}
	return customerID, actor, true
}

func (handler *Handler) bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("expected JSON body")
		}
		handler.respondInvalidPayload(ctx, err)
		return false
	}
	return true
}

func (handler *Handler) handleAccount(ctx *gin.Context) {
	customerID, _, ok := handler.requestScope(ctx)
	if !ok {
		return
	}
	record, err := handler.service.Account(ctx.Request.Context(), customerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"account": newAccountPayload(record)})
}

func (handler *Handler) handlePayment(ctx *gin.Context) {
	customerID, actor, ok := handler.requestScope(ctx)
	if !ok {
		return
	}
	var payload paymentRequest
	if !handler.bindJSON(ctx, &payload) {
		return
	}
	request, err := buildPaymentRequest(customerID, payload)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.service.ProcessPayment(ctx.Request.Context(), request, actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, newResultPayload(result))
}

func buildPaymentRequest(customerID ledger.CustomerID, payload paymentRequest) (ledger.PaymentRequest, error) {
	operation, err := ledger.ParseOperation(payload.Operation)
	if err != nil {
		return ledger.PaymentRequest{}, err
	}
	amountCents, err := positiveAmount(payload.Amount)
	if err != nil {
		return ledger.PaymentRequest{}, err
	}
	tender, err := paymentType(payload.PaymentType, payload.CashAmount, payload.CreditAmount)
	if err != nil {
		return ledger.PaymentRequest{}, err
	}
	key, err := idempotencyKey(payload.IdempotencyKey)
	if err != nil {
		return ledger.PaymentRequest{}, err
	}
	meta, err := metadata(payload.Metadata)
	if err != nil {
		return ledger.PaymentRequest{}, err
	}
	return ledger.PaymentRequest{
		CustomerID:     customerID,
		Operation:      operation,
		Amount:         amountCents,
		PaymentType:    tender,
		Note:           payload.Note,
		Slip:           payload.Slip,
		IdempotencyKey: key,
		Metadata:       meta,
	}, nil
}

func (handler *Handler) handleSale(ctx *gin.Context) {
	customerID, actor, ok := handler.requestScope(ctx)
	if !ok {
		return
	}
	var payload saleRequest
	if !handler.bindJSON(ctx, &payload) {
		return
	}
	request, err := buildSaleRequest(customerID, payload)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := handler.service.RecordSale(ctx.Request.Context(), request, actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, newResultPayload(result))
}

func buildSaleRequest(customerID ledger.CustomerID, payload saleRequest) (ledger.SaleRequest, error) {
	saleID, err := ledger.NewSaleID(payload.SaleID)
	if err != nil {
		return ledger.SaleRequest{}, err
	}
	total, err := positiveAmount(payload.Total)
	if err != nil {
		return ledger.SaleRequest{}, err
	}
	tender, err := paymentType(payload.PaymentType, payload.CashAmount, payload.CreditAmount)
	if err != nil {
		return ledger.SaleRequest{}, err
	}
	key, err := idempotencyKey(payload.IdempotencyKey)
	if err != nil {
		return ledger.SaleRequest{}, err
	}
	meta, err := metadata(payload.Metadata)
	if err != nil {
		return ledger.SaleRequest{}, err
	}
	return ledger.SaleRequest{
		CustomerID:     customerID,
		SaleID:         saleID,
		Total:          total,
		PaymentType:    tender,
		Note:           payload.Note,
		Slip:           payload.Slip,
		IdempotencyKey: key,
		Metadata:       meta,
	}, nil
}

func (handler *Handler) handleCreditLimit(ctx *gin.Context) {
	handler.handleLimitChange(ctx, handler.service.UpdateCreditLimit)
}

func (handler *Handler) handleCreditConversion(ctx *gin.Context) {
	handler.handleLimitChange(ctx, handler.service.ConvertToCredit)
}

type limitOperation func(ctx context.Context, customerID ledger.CustomerID, limit ledger.AmountCents, actor ledger.Actor) (ledger.Result, error)

func (handler *Handler) handleLimitChange(ctx *gin.Context, operation limitOperation) {
	customerID, actor, ok := handler.requestScope(ctx)
	if !ok {
		return
	}
	var payload limitRequest
	if !handler.bindJSON(ctx, &payload) {
		return
	}
	if payload.Limit == nil {
		handler.respondError(ctx, fmt.Errorf("%w: limit is required", ledger.ErrInvalidAmount))
		return
	}
	limit, err := amount(*payload.Limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	result, err := operation(ctx.Request.Context(), customerID, limit, actor)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newResultPayload(result))
}

func (handler *Handler) handleStatement(ctx *gin.Context) {
	customerID, _, ok := handler.requestScope(ctx)
	if !ok {
		return
	}
	dateRange, err := handler.parseDateRange(ctx.Query("start"), ctx.Query("end"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	statement, err := handler.service.Statement(ctx.Request.Context(), customerID, dateRange)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newStatementPayload(statement))
}

func (handler *Handler) parseDateRange(rawStart string, rawEnd string) (ledger.DateRange, error) {
	start, err := time.ParseInLocation(time.DateOnly, rawStart, handler.location)
	if err != nil {
		return ledger.DateRange{}, fmt.Errorf("%w: start must be YYYY-MM-DD", ledger.ErrInvalidDateRange)
	}
	end, err := time.ParseInLocation(time.DateOnly, rawEnd, handler.location)
	if err != nil {
		return ledger.DateRange{}, fmt.Errorf("%w: end must be YYYY-MM-DD", ledger.ErrInvalidDateRange)
	}
	return ledger.NewDateRange(start, end)
}

func (handler *Handler) handleReconciliation(ctx *gin.Context) {
	customerID, _, ok := handler.requestScope(ctx)
	if !ok {
		return
	}
	reconciliation, err := handler.service.Reconcile(ctx.Request.Context(), customerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newReconciliationPayload(reconciliation))
}
