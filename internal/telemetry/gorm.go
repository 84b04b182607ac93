package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQueryThreshold = 200 * time.Millisecond

// GormLogger routes gorm's query log through zap.
type GormLogger struct {
	logger        *zap.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// GormLoggerOption configures a GormLogger.
type GormLoggerOption func(*GormLogger)

// WithSlowQueryThreshold overrides the duration above which a query is logged as slow.
// Zero disables slow query warnings.
func WithSlowQueryThreshold(threshold time.Duration) GormLoggerOption {
	return func(logger *GormLogger) {
		if threshold >= 0 {
			logger.slowThreshold = threshold
		}
	}
}

// NewGormLogger wraps zapLogger for gorm.Config.Logger.
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, options ...GormLoggerOption) *GormLogger {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	logger := &GormLogger{
		logger:        zapLogger.Named("gorm"),
		level:         level,
		slowThreshold: defaultSlowQueryThreshold,
	}
	for _, option := range options {
		option(logger)
	}
	return logger
}

// LogMode implements gormlogger.Interface.
func (logger *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copied := *logger
	copied.level = level
	return &copied
}

// Info implements gormlogger.Interface.
func (logger *GormLogger) Info(_ context.Context, message string, data ...any) {
	if logger.level >= gormlogger.Info {
		logger.logger.Sugar().Infof(message, data...)
	}
}

// Warn implements gormlogger.Interface.
func (logger *GormLogger) Warn(_ context.Context, message string, data ...any) {
	if logger.level >= gormlogger.Warn {
		logger.logger.Sugar().Warnf(message, data...)
	}
}

// Error implements gormlogger.Interface.
func (logger *GormLogger) Error(_ context.Context, message string, data ...any) {
	if logger.level >= gormlogger.Error {
		logger.logger.Sugar().Errorf(message, data...)
	}
}

// Trace implements gormlogger.Interface.
func (logger *GormLogger) Trace(_ context.Context, begin time.Time, query func() (string, int64), err error) {
	if logger.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := query()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	}
	switch {
	case err != nil && logger.level >= gormlogger.Error:
		// Account lookups of unknown customers surface as ledger errors instead.
		if errors.Is(err, gormlogger.ErrRecordNotFound) {
			return
		}
		logger.logger.Error("sql error", append(fields, zap.Error(err))...)
	case logger.slowThreshold != 0 && elapsed > logger.slowThreshold && logger.level >= gormlogger.Warn:
		logger.logger.Warn(fmt.Sprintf("slow sql >= %v", logger.slowThreshold), fields...)
	case logger.level >= gormlogger.Info:
		logger.logger.Debug("sql", fields...)
	}
}

// GormLogLevel maps a zap level name onto the gorm log level.
func GormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "debug":
		return gormlogger.Info
	case "error", "dpanic", "panic", "fatal":
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}
