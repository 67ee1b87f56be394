package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rentescrow/config"
	"rentescrow/core"
	"rentescrow/indexer"
	"rentescrow/observability/logging"
	telemetry "rentescrow/observability/otel"
	"rentescrow/rpc"
	"rentescrow/storage"
)

const (
	genesisPathEnv = "RENTAL_GENESIS"
	envNameEnv     = "RENTAL_ENV"
	shutdownGrace  = 10 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides RENTAL_GENESIS and config GenesisFile)")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if path := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv); path != cfg.GenesisFile {
		cfg.GenesisFile = path
		cfg.Genesis = config.Genesis{}
	}
	if *allowMigrateFlag {
		cfg.AllowMigrate = true
	}

	env := strings.TrimSpace(cfg.Log.Env)
	if value := strings.TrimSpace(os.Getenv(envNameEnv)); value != "" {
		env = value
	}
	logger, closer := logging.SetupWithOptions(logging.Options{
		Service:    "rentald",
		Env:        env,
		Level:      logging.ParseLevel(cfg.Log.Level),
		File:       cfg.ResolvePath(cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, env, logger); err != nil {
		logger.Error("rentald terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, env string, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "rentald",
		Environment: env,
		Network:     cfg.NetworkName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		logger.Info("telemetry export enabled",
			slog.String("endpoint", cfg.Telemetry.Endpoint),
			logging.MaskField("otlp_headers", cfg.Telemetry.Headers))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	nodeCfg, err := nodeConfig(cfg, logger)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(cfg.ResolvePath("ledger"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	node, err := core.NewNode(db, nodeCfg)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	var events rpc.EventSource
	if path := cfg.ResolvePath(cfg.JournalPath); path != "" {
		journal, err := indexer.Open(path, logger)
		if err != nil {
			return fmt.Errorf("open event journal: %w", err)
		}
		defer journal.Close()
		node.Subscribe(journal)
		events = journal
	}

	server, err := rpc.NewServer(node, events, rpcServerConfig(cfg, logger, os.LookupEnv))
	if err != nil {
		return fmt.Errorf("initialise RPC server: %w", err)
	}
	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.RPCAddress, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	logger.Info("rental node running",
		slog.String("network", cfg.NetworkName),
		slog.String("rpc", listener.Addr().String()),
		slog.Uint64("height", node.Height()))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("RPC server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown RPC server: %w", err)
	}
	return nil
}

type envLookupFunc func(string) (string, bool)

func resolveGenesisPath(cliPath string, cfgPath string, lookup envLookupFunc) string {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return cfgPath
}

func nodeConfig(cfg *config.Config, logger *slog.Logger) (core.NodeConfig, error) {
	runtime, err := cfg.RentalRuntime()
	if err != nil {
		return core.NodeConfig{}, fmt.Errorf("parse rental settings: %w", err)
	}
	spec, err := cfg.GenesisSpec()
	if err != nil {
		return core.NodeConfig{}, fmt.Errorf("load genesis: %w", err)
	}
	return core.NodeConfig{
		Genesis: spec,
		Rental: core.RentalSettings{
			NamespaceTag:  runtime.NamespaceTag,
			Payout:        runtime.Payout,
			RecordDeposit: runtime.RecordDeposit,
		},
		Logger:       logger,
		AllowMigrate: cfg.AllowMigrate,
	}, nil
}

// rpcServerConfig enables bearer auth only when the configured secret
// variable is present in the environment.
func rpcServerConfig(cfg *config.Config, logger *slog.Logger, lookup envLookupFunc) rpc.ServerConfig {
	secretEnv := strings.TrimSpace(cfg.RPC.JWTSecretEnv)
	enabled := false
	if secretEnv != "" && lookup != nil {
		_, enabled = lookup(secretEnv)
	}
	if !enabled && logger != nil {
		logger.Warn("RPC authentication disabled; mutating methods are open",
			slog.String("secret_env", secretEnv))
	}
	return rpc.ServerConfig{
		JWT: rpc.JWTConfig{
			Enable:      enabled,
			HSSecretEnv: secretEnv,
			Issuer:      cfg.RPC.JWTIssuer,
		},
		RateLimitPerSec:   cfg.RPC.RateLimitPerSec,
		RateLimitBurst:    cfg.RPC.RateLimitBurst,
		ReadHeaderTimeout: time.Duration(cfg.RPC.ReadHeaderTimeout) * time.Second,
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeout) * time.Second,
		IdleTimeout:       time.Duration(cfg.RPC.IdleTimeout) * time.Second,
		Logger:            logger,
	}
}
