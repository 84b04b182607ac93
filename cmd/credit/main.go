package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/storecredit/internal/auth"
	"github.com/MarkoPoloResearchLab/storecredit/internal/config"
	"github.com/MarkoPoloResearchLab/storecredit/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/storecredit/internal/httpapi"
	"github.com/MarkoPoloResearchLab/storecredit/internal/telemetry"
	"github.com/MarkoPoloResearchLab/storecredit/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const (
	flagDatabaseURL       = "database-url"
	flagStoreDriver       = "store-driver"
	flagLogLevel          = "log-level"
	flagLockTimeout       = "lock-timeout"
	flagStatementTimezone = "statement-timezone"
	flagListenAddr        = "listen-addr"
	flagGRPCListenAddr    = "grpc-listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagJWTSigningKey     = "jwt-signing-key"
	flagJWTIssuer         = "jwt-issuer"
	flagShutdownTimeout   = "shutdown-timeout"
	flagCustomerID        = "customer-id"
	flagStoreID           = "store-id"
	envPrefix             = "CREDITD"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "creditd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "creditd",
		Short:         "Customer credit account ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServeCommand,
	}

	cmd.PersistentFlags().String(flagDatabaseURL, "", "database url: postgres://... or sqlite://path (default sqlite:///tmp/storecredit.db)")
	cmd.PersistentFlags().String(flagStoreDriver, "", "persistence for postgres: gorm or pgx (default gorm)")
	cmd.PersistentFlags().String(flagLogLevel, "", "log level: debug, info, warn, error (default info)")
	cmd.PersistentFlags().Duration(flagLockTimeout, 0, "how long an operation waits for a customer's lock (default 5s)")
	cmd.PersistentFlags().String(flagStatementTimezone, "", "IANA time zone for statement day boundaries (default UTC)")

	cmd.AddCommand(newServeCommand(), newMigrateCommand(), newRegisterCustomerCommand(), newReconcileCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger HTTP and gRPC APIs",
		RunE:  runServeCommand,
	}
	cmd.Flags().String(flagListenAddr, "", "HTTP listen address (default :8080)")
	cmd.Flags().String(flagGRPCListenAddr, "", "gRPC listen address, or off (default :9090)")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "HS256 key used to verify actor tokens (required)")
	cmd.Flags().String(flagJWTIssuer, "", "expected token issuer (default storecredit)")
	cmd.Flags().Duration(flagShutdownTimeout, 0, "graceful shutdown timeout (default 5s)")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadStorageConfig(cmd)
			if err != nil {
				return err
			}
			return withBackend(cmd.Context(), cfg, func(backend backend) error {
				fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", backend.name)
				return nil
			})
		},
	}
}

func newRegisterCustomerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register-customer",
		Short: "Open a cash account for a customer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := loadStorageConfig(cmd)
			if err != nil {
				return err
			}
			customerID, err := ledger.NewCustomerID(v.GetString(flagCustomerID))
			if err != nil {
				return err
			}
			storeID, err := ledger.NewStoreID(v.GetString(flagStoreID))
			if err != nil {
				return err
			}
			return withBackend(cmd.Context(), cfg, func(backend backend) error {
				record, err := backend.store.RegisterCustomer(cmd.Context(), customerID, storeID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "customer %s in store %s: %s account, net position %s, version %d\n",
					record.CustomerID, record.StoreID, record.State.Type, record.State.NetPosition(), record.Version)
				return nil
			})
		},
	}
	cmd.Flags().String(flagCustomerID, "", "customer id (required)")
	cmd.Flags().String(flagStoreID, "", "store id of the customer's home store (required)")
	return cmd
}

func newReconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Replay a customer's ledger and compare it with the stored account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := loadStorageConfig(cmd)
			if err != nil {
				return err
			}
			customerID, err := ledger.NewCustomerID(v.GetString(flagCustomerID))
			if err != nil {
				return err
			}
			return withBackend(cmd.Context(), cfg, func(backend backend) error {
				service, err := newLedgerService(cfg, backend.store, nil)
				if err != nil {
					return err
				}
				reconciliation, err := service.Reconcile(cmd.Context(), customerID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "customer %s: %d entries, amounts sum to %s, stored net position %s, consistent %t\n",
					customerID, reconciliation.EntryCount, reconciliation.SumOfAmounts,
					reconciliation.Stored.State.NetPosition(), reconciliation.Consistent)
				if reconciliation.Mismatch != nil {
					return reconciliation.Mismatch
				}
				return nil
			})
		},
	}
	cmd.Flags().String(flagCustomerID, "", "customer id (required)")
	return cmd
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	v := newViper()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}
	cfg := readConfig(v)
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runServer(ctx, cfg)
}

func runServer(ctx context.Context, cfg config.Config) error {
	return withBackend(ctx, cfg, func(backend backend) error {
		logger := backend.logger
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := telemetry.NewMetrics(registry)
		if err != nil {
			return err
		}
		service, err := newLedgerService(cfg, backend.store, telemetry.MultiOperationLogger{
			telemetry.NewZapOperationLogger(logger),
			metrics,
		})
		if err != nil {
			return err
		}
		validator, err := auth.NewValidator(cfg.JWTSigningKey, cfg.JWTIssuer)
		if err != nil {
			return err
		}
		location, err := cfg.Location()
		if err != nil {
			return err
		}
		handler, err := httpapi.NewHandler(service, logger, location)
		if err != nil {
			return err
		}
		router := httpapi.NewRouter(httpapi.RouterConfig{
			AllowedOrigins: cfg.AllowedOrigins,
			Actors:         validator,
			Gatherer:       registry,
		}, handler)

		ledgerServer, err := grpcserver.NewLedgerServer(service, location)
		if err != nil {
			return err
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			return httpapi.Serve(groupCtx, logger, cfg.ListenAddr, cfg.ShutdownTimeout, router)
		})
		if cfg.GRPCEnabled() {
			grpcServer := grpcserver.NewServer(grpcserver.ServerConfig{Actors: validator, Logger: logger}, ledgerServer)
			group.Go(func() error {
				return grpcserver.Serve(groupCtx, logger, cfg.GRPCListenAddr, grpcServer)
			})
		}
		return group.Wait()
	})
}

func newLedgerService(cfg config.Config, store ledger.Store, operationLogger ledger.OperationLogger) (*ledger.Service, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	options := []ledger.ServiceOption{
		ledger.WithLockTimeout(cfg.LockTimeout),
		ledger.WithStatementLocation(location),
	}
	if operationLogger != nil {
		options = append(options, ledger.WithOperationLogger(operationLogger))
	}
	service, err := ledger.NewService(store, clock, options...)
	if err != nil {
		return nil, fmt.Errorf("ledger service init: %w", err)
	}
	return service, nil
}

func loadStorageConfig(cmd *cobra.Command) (config.Config, *viper.Viper, error) {
	v := newViper()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, nil, err
	}
	cfg := readConfig(v)
	if err := cfg.ValidateStorage(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, v, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// bindFlags binds every flag the running command knows, inherited ones included.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(flag *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(flag.Name, flag)
		}
	})
	if bindErr != nil {
		return bindErr
	}
	return v.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL")
}

func readConfig(v *viper.Viper) config.Config {
	return config.Config{
		DatabaseURL:       strings.TrimSpace(v.GetString(flagDatabaseURL)),
		StoreDriver:       strings.TrimSpace(v.GetString(flagStoreDriver)),
		LogLevel:          strings.TrimSpace(v.GetString(flagLogLevel)),
		LockTimeout:       v.GetDuration(flagLockTimeout),
		StatementTimezone: strings.TrimSpace(v.GetString(flagStatementTimezone)),
		ListenAddr:        strings.TrimSpace(v.GetString(flagListenAddr)),
		GRPCListenAddr:    strings.TrimSpace(v.GetString(flagGRPCListenAddr)),
		AllowedOrigins:    config.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		JWTSigningKey:     v.GetString(flagJWTSigningKey),
		JWTIssuer:         strings.TrimSpace(v.GetString(flagJWTIssuer)),
		ShutdownTimeout:   v.GetDuration(flagShutdownTimeout),
	}
}
