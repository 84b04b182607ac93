package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/storecredit/internal/config"
	"github.com/MarkoPoloResearchLab/storecredit/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/storecredit/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/storecredit/internal/telemetry"
	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// customerStore is a ledger store that can also open accounts.
type customerStore interface {
	ledger.Store
	RegisterCustomer(ctx context.Context, customerID ledger.CustomerID, storeID ledger.StoreID) (ledger.AccountRecord, error)
}

type backend struct {
	name   string
	store  customerStore
	logger *zap.Logger
}

func clock() time.Time {
	return time.Now().UTC()
}

// withBackend opens the configured store with its schema applied, runs fn, and closes everything.
func withBackend(ctx context.Context, cfg config.Config, fn func(backend backend) error) error {
	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	opened, cleanup, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()
	opened.logger = logger
	return fn(opened)
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, func(), error) {
	if cfg.StoreDriver == config.StoreDriverPgx {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return backend{}, nil, err
		}
		if err := pgstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return backend{}, nil, err
		}
		return backend{name: "pgx", store: pgstore.New(pool)}, pool.Close, nil
	}

	gormDB, cleanup, driver, err := openDatabase(cfg.DatabaseURL, telemetry.NewGormLogger(logger, telemetry.GormLogLevel(cfg.LogLevel)))
	if err != nil {
		return backend{}, nil, err
	}
	if err := gormstore.AutoMigrate(gormDB.WithContext(ctx)); err != nil {
		_ = cleanup()
		return backend{}, nil, fmt.Errorf("auto migrate: %w", err)
	}
	return backend{name: "gorm/" + driver, store: gormstore.New(gormDB)}, func() { _ = cleanup() }, nil
}

func openDatabase(dsn string, gormLogger *telemetry.GormLogger) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{Logger: gormLogger}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	if driver == driverSQLite {
		// sqlite allows one writer; the ledger serializes writes per customer already.
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db, cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if config.IsPostgresURL(dsn) {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "storecredit.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
