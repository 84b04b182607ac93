package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func sampleLog(test *testing.T, err error) ledger.OperationLog {
	test.Helper()
	customerID, idErr := ledger.NewCustomerID("customer-1")
	require.NoError(test, idErr)
	actor, actorErr := ledger.NewActor("cashier-1", "cashier", "store-1")
	require.NoError(test, actorErr)
	status := "ok"
	if err != nil {
		status = "error"
	}
	return ledger.OperationLog{
		Operation:  "process_payment",
		CustomerID: customerID,
		Actor:      actor,
		Amount:     1250,
		Status:     status,
		Kind:       ledger.Classify(err),
		Error:      err,
		Duration:   15 * time.Millisecond,
	}
}

func TestNewLoggerLevels(test *testing.T) {
	logger, err := NewLogger("")
	require.NoError(test, err)
	assert.True(test, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(test, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger("WARN")
	require.NoError(test, err)
	assert.False(test, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger("loud")
	assert.Error(test, err)
}

func TestZapOperationLoggerWritesFields(test *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	operationLogger := NewZapOperationLogger(zap.New(core))

	operationLogger.LogOperation(context.Background(), sampleLog(test, nil))

	entries := recorded.All()
	require.Len(test, entries, 1)
	assert.Equal(test, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(test, "ledger", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(test, "customer-1", fields["customer_id"])
	assert.Equal(test, "12.50", fields["amount"])
	assert.Equal(test, "cashier", fields["actor_role"])
	assert.NotContains(test, fields, "kind")
}

func TestZapOperationLoggerLevelsByKind(test *testing.T) {
	testCases := []struct {
		name  string
		err   error
		level zapcore.Level
		kind  string
	}{
		{name: "rejected", err: &ledger.CreditLimitError{Limit: 100, Attempted: 200}, level: zapcore.WarnLevel, kind: "credit_limit_exceeded"},
		{name: "persistence", err: ledger.PersistenceError("store", "entry", "insert", errors.New("disk full")), level: zapcore.ErrorLevel, kind: "persistence"},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			NewZapOperationLogger(zap.New(core)).LogOperation(context.Background(), sampleLog(test, testCase.err))

			entries := recorded.All()
			require.Len(test, entries, 1)
			assert.Equal(test, testCase.level, entries[0].Level)
			assert.Equal(test, testCase.kind, entries[0].ContextMap()["kind"])
		})
	}
}

func TestMetricsCountsOperations(test *testing.T) {
	registry := prometheus.NewRegistry()
	metrics, err := NewMetrics(registry)
	require.NoError(test, err)

	metrics.LogOperation(context.Background(), sampleLog(test, nil))
	metrics.LogOperation(context.Background(), sampleLog(test, nil))
	metrics.LogOperation(context.Background(), sampleLog(test, ledger.ErrConcurrencyConflict))

	assert.Equal(test, 2.0, testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("process_payment", "ok", "none")))
	assert.Equal(test, 1.0, testutil.ToFloat64(metrics.operationsTotal.WithLabelValues("process_payment", "error", "concurrency_conflict")))
	assert.Equal(test, 1, testutil.CollectAndCount(metrics.operationDuration))

	expected := `
# HELP storecredit_ledger_operations_total Ledger mutations by operation, status and error kind.
# TYPE storecredit_ledger_operations_total counter
storecredit_ledger_operations_total{kind="concurrency_conflict",operation="process_payment",status="error"} 1
storecredit_ledger_operations_total{kind="none",operation="process_payment",status="ok"} 2
`
	assert.NoError(test, testutil.GatherAndCompare(registry, strings.NewReader(expected), "storecredit_ledger_operations_total"))
}

func TestMetricsRejectsDoubleRegistration(test *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewMetrics(registry)
	require.NoError(test, err)

	_, err = NewMetrics(registry)
	assert.Error(test, err)

	_, err = NewMetrics(nil)
	assert.Error(test, err)
}

type countingLogger struct {
	calls int
}

func (logger *countingLogger) LogOperation(context.Context, ledger.OperationLog) {
	logger.calls++
}

func TestMultiOperationLoggerFansOut(test *testing.T) {
	first := &countingLogger{}
	second := &countingLogger{}
	loggers := MultiOperationLogger{first, nil, second}

	loggers.LogOperation(context.Background(), sampleLog(test, nil))

	assert.Equal(test, 1, first.calls)
	assert.Equal(test, 1, second.calls)
}

func TestGormLoggerLogMode(test *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	logger := NewGormLogger(zap.New(core), gormlogger.Warn)

	changed := logger.LogMode(gormlogger.Info)

	assert.Equal(test, gormlogger.Warn, logger.level)
	copied, ok := changed.(*GormLogger)
	require.True(test, ok)
	assert.Equal(test, gormlogger.Info, copied.level)
}

func TestGormLoggerTrace(test *testing.T) {
	query := func() (string, int64) { return `SELECT * FROM "customer_accounts"`, 1 }
	testCases := []struct {
		name      string
		level     gormlogger.LogLevel
		begin     time.Time
		err       error
		wantLevel zapcore.Level
		wantCount int
	}{
		{name: "error", level: gormlogger.Error, begin: time.Now(), err: errors.New("boom"), wantLevel: zapcore.ErrorLevel, wantCount: 1},
		{name: "record not found is quiet", level: gormlogger.Error, begin: time.Now(), err: gormlogger.ErrRecordNotFound},
		{name: "slow", level: gormlogger.Warn, begin: time.Now().Add(-time.Second), wantLevel: zapcore.WarnLevel, wantCount: 1},
		{name: "fast query below info", level: gormlogger.Warn, begin: time.Now()},
		{name: "info", level: gormlogger.Info, begin: time.Now(), wantLevel: zapcore.DebugLevel, wantCount: 1},
		{name: "silent", level: gormlogger.Silent, begin: time.Now(), err: errors.New("boom")},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			logger := NewGormLogger(zap.New(core), testCase.level)

			logger.Trace(context.Background(), testCase.begin, query, testCase.err)

			entries := recorded.All()
			require.Len(test, entries, testCase.wantCount)
			if testCase.wantCount > 0 {
				assert.Equal(test, testCase.wantLevel, entries[0].Level)
				assert.Equal(test, "gorm", entries[0].LoggerName)
			}
		})
	}
}

func TestGormLoggerSlowThresholdDisabled(test *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	logger := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowQueryThreshold(0))

	logger.Trace(context.Background(), time.Now().Add(-time.Hour), func() (string, int64) { return "SELECT 1", 1 }, nil)

	assert.Empty(test, recorded.All())
}

func TestGormLogLevel(test *testing.T) {
	assert.Equal(test, gormlogger.Info, GormLogLevel("debug"))
	assert.Equal(test, gormlogger.Warn, GormLogLevel("info"))
	assert.Equal(test, gormlogger.Error, GormLogLevel("error"))
	assert.Equal(test, gormlogger.Silent, GormLogLevel("silent"))
}
