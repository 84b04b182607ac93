// Package httpapi exposes the customer credit ledger over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/storecredit/internal/auth"
	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const actorContextKey = "ledger_actor"

// LedgerService is the part of ledger.Service the HTTP surface drives.
type LedgerService interface {
	Account(ctx context.Context, customerID ledger.CustomerID) (ledger.AccountRecord, error)
	ProcessPayment(ctx context.Context, request ledger.PaymentRequest, actor ledger.Actor) (ledger.Result, error)
	RecordSale(ctx context.Context, request ledger.SaleRequest, actor ledger.Actor) (ledger.Result, error)
	UpdateCreditLimit(ctx context.Context, customerID ledger.CustomerID, newLimit ledger.AmountCents, actor ledger.Actor) (ledger.Result, error)
	ConvertToCredit(ctx context.Context, customerID ledger.CustomerID, limit ledger.AmountCents, actor ledger.Actor) (ledger.Result, error)
	Statement(ctx context.Context, customerID ledger.CustomerID, dateRange ledger.DateRange) (ledger.Statement, error)
	Reconcile(ctx context.Context, customerID ledger.CustomerID) (ledger.Reconciliation, error)
}

// ActorParser resolves a bearer token to the actor performing the request.
type ActorParser interface {
	ParseActor(token string) (ledger.Actor, error)
}

// RouterConfig carries what the router needs beyond the handler.
type RouterConfig struct {
	AllowedOrigins []string
	Actors         ActorParser
	Gatherer       prometheus.Gatherer
}

// Handler serves the ledger routes.
type Handler struct {
	service  LedgerService
	logger   *zap.Logger
	location *time.Location
}

// NewHandler wires a Handler. Statement dates are read in location.
func NewHandler(service LedgerService, logger *zap.Logger, location *time.Location) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("httpapi: ledger service is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &Handler{service: service, logger: logger, location: location}, nil
}

// NewRouter builds the gin engine with health, metrics and the customer routes.
func NewRouter(cfg RouterConfig, handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.Use(actorMiddleware(cfg.Actors))

	customers := api.Group("/customers/:customerID")
	customers.GET("/account", handler.handleAccount)
	customers.POST("/payments", handler.handlePayment)
	customers.POST("/sales", handler.handleSale)
	customers.PUT("/credit-limit", handler.handleCreditLimit)
	customers.POST("/credit-conversion", handler.handleCreditConversion)
	customers.GET("/statement", handler.handleStatement)
	customers.GET("/reconciliation", handler.handleReconciliation)

	return router
}

// Serve runs router on listenAddr until ctx is done, then drains within shutdownTimeout.
func Serve(ctx context.Context, logger *zap.Logger, listenAddr string, shutdownTimeout time.Duration, router http.Handler) error {
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("creditd listening", zap.String("addr", listenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func actorMiddleware(actors ActorParser) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if actors == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "authentication is not configured"))
			return
		}
		token, ok := auth.BearerToken(ctx.GetHeader("Authorization"))
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing bearer token"))
			return
		}
		actor, err := actors.ParseActor(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "invalid bearer token"))
			return
		}
		ctx.Set(actorContextKey, actor)
		ctx.Next()
	}
}

func getActor(ctx *gin.Context) (ledger.Actor, bool) {
	value, ok := ctx.Get(actorContextKey)
	if !ok {
		return ledger.Actor{}, false
	}
	actor, ok := value.(ledger.Actor)
	return actor, ok
}
