package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	operationStatusError = "error"
	defaultLogLevel      = "info"
)

// NewLogger builds a production zap logger at the named level.
func NewLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(defaultIfEmpty(strings.ToLower(level), defaultLogLevel))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parsed)
	return config.Build()
}

// ZapOperationLogger writes ledger operations as structured zap logs.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger names the logger "ledger" and returns the hook.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger.Named("ledger")}
}

// LogOperation implements ledger.OperationLogger.
func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("customer_id", entry.CustomerID.String()),
		zap.String("actor_id", entry.Actor.ID.String()),
		zap.String("actor_role", entry.Actor.Role),
		zap.String("store_id", entry.Actor.StoreID.String()),
		zap.String("amount", entry.Amount.String()),
		zap.String("status", entry.Status),
		zap.Duration("duration", entry.Duration),
	}
	if entry.EntryID.String() != "" {
		fields = append(fields, zap.String("entry_id", entry.EntryID.String()))
	}
	if entry.Status != operationStatusError {
		operationLogger.logger.Info("ledger operation", fields...)
		return
	}
	fields = append(fields, zap.String("kind", string(entry.Kind)), zap.Error(entry.Error))
	switch entry.Kind {
	case ledger.KindPersistence, ledger.KindInternal:
		operationLogger.logger.Error("ledger operation failed", fields...)
	default:
		operationLogger.logger.Warn("ledger operation rejected", fields...)
	}
}

// MultiOperationLogger fans a log out to several hooks in order.
type MultiOperationLogger []ledger.OperationLogger

// LogOperation implements ledger.OperationLogger.
func (loggers MultiOperationLogger) LogOperation(ctx context.Context, entry ledger.OperationLog) {
	for _, logger := range loggers {
		if logger != nil {
			logger.LogOperation(ctx, entry)
		}
	}
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
