// Package config holds the creditd runtime settings.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	StoreDriverGorm = "gorm"
	StoreDriverPgx  = "pgx"

	defaultDatabaseURL     = "sqlite:///tmp/storecredit.db"
	defaultListenAddr      = ":8080"
	defaultGRPCListenAddr  = ":9090"
	defaultAllowedOrigin   = "http://localhost:8000"
	defaultJWTIssuer       = "storecredit"
	defaultLockTimeout     = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultTimezone        = "UTC"
	defaultLogLevel        = "info"

	// GRPCDisabled turns the gRPC listener off.
	GRPCDisabled = "off"
)

// Config aggregates runtime settings for creditd.
type Config struct {
	DatabaseURL       string
	ListenAddr        string
	GRPCListenAddr    string
	AllowedOrigins    []string
	JWTSigningKey     string
	JWTIssuer         string
	LockTimeout       time.Duration
	StatementTimezone string
	LogLevel          string
	ShutdownTimeout   time.Duration
	StoreDriver       string
}

// ValidateStorage applies defaults and checks the settings every subcommand needs.
func (cfg *Config) ValidateStorage() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(cfg.StoreDriver, StoreDriverGorm))
	cfg.LogLevel = strings.ToLower(defaultIfEmpty(cfg.LogLevel, defaultLogLevel))
	cfg.StatementTimezone = defaultIfEmpty(cfg.StatementTimezone, defaultTimezone)
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	switch cfg.StoreDriver {
	case StoreDriverGorm, StoreDriverPgx:
	default:
		return fmt.Errorf("store driver %q is not one of %s, %s", cfg.StoreDriver, StoreDriverGorm, StoreDriverPgx)
	}
	if cfg.StoreDriver == StoreDriverPgx && !IsPostgresURL(cfg.DatabaseURL) {
		return fmt.Errorf("store driver %s requires a postgres database url", StoreDriverPgx)
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	return nil
}

// Validate ensures the configuration contains sane values for serving HTTP and gRPC.
func (cfg *Config) Validate() error {
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.GRPCListenAddr = strings.TrimSpace(defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr))
	if cfg.GRPCEnabled() && cfg.GRPCListenAddr == cfg.ListenAddr {
		return fmt.Errorf("grpc listen addr %s collides with the http listen addr", cfg.GRPCListenAddr)
	}
	cfg.JWTIssuer = defaultIfEmpty(cfg.JWTIssuer, defaultJWTIssuer)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if len(cfg.JWTSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

// GRPCEnabled reports whether creditd should serve gRPC.
func (cfg Config) GRPCEnabled() bool {
	return !strings.EqualFold(strings.TrimSpace(cfg.GRPCListenAddr), GRPCDisabled)
}

// Location resolves the time zone used for statement day boundaries.
func (cfg Config) Location() (*time.Location, error) {
	location, err := time.LoadLocation(defaultIfEmpty(cfg.StatementTimezone, defaultTimezone))
	if err != nil {
		return nil, fmt.Errorf("statement timezone %q: %w", cfg.StatementTimezone, err)
	}
	return location, nil
}

// IsPostgresURL reports whether dsn names a postgres server.
func IsPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
