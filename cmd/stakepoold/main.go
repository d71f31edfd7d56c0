package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stakepool/config"
	"stakepool/core"
	"stakepool/core/genesis"
	"stakepool/observability/logging"
	telemetry "stakepool/observability/otel"
	"stakepool/rpc"
	"stakepool/rpc/middleware"
	"stakepool/storage"
	"stakepool/storage/receipts"
)

const (
	serviceName    = "stakepoold"
	genesisPathEnv = "STAKEPOOL_GENESIS"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to the genesis YAML (overrides STAKEPOOL_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.SetupWithOptions(serviceName, logging.Options{
		Env:        cfg.Log.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	if err := run(cfg, resolveGenesisPath(*genesisFlag, cfg.GenesisFile), logger); err != nil {
		logger.Error("stakepoold exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func resolveGenesisPath(flagValue, configValue string) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if value, ok := os.LookupEnv(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(configValue)
}

func run(cfg *config.Config, genesisPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.TelemetryConfig(serviceName, cfg.Log.Env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	journal, err := receipts.Open(cfg.Receipts.DSN)
	if err != nil {
		return fmt.Errorf("open receipts: %w", err)
	}
	defer journal.Close()
	logger.Info("receipts journal opened", slog.String("dsn", cfg.Receipts.DSN))

	node, err := core.NewNode(db)
	if err != nil {
		return err
	}
	node.SetLogger(logger)
	node.SetReceipts(journal)

	if genesisPath != "" {
		spec, err := genesis.LoadSpec(genesisPath)
		if err != nil {
			return err
		}
		applied, err := node.Bootstrap(ctx, spec)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis checked", slog.String("file", genesisPath), slog.Bool("applied", applied))
	} else if _, err := node.PoolInfo(); core.IsNotInitialized(err) {
		return errors.New("store holds no pool and no genesis file was provided")
	}

	server := rpc.NewServer(node, journal, rpc.ServerConfig{
		Auth: middleware.AuthConfig{
			HMACSecret: cfg.Auth.Secret(),
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		},
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
			Burst:             cfg.RateLimit.Burst,
		},
		LogRequests: strings.EqualFold(cfg.Log.Level, "debug"),
	}, logger)
	if cfg.Auth.Secret() == "" {
		logger.Warn("auth secret not configured; every mutating call will be rejected")
	}

	errCh := make(chan error, 2)
	go func() { errCh <- server.Start(cfg.ListenAddress) }()

	if addr := strings.TrimSpace(cfg.HealthAddress); addr != "" {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen health: %w", err)
		}
		health := rpc.NewHealthServer(node, logger)
		defer health.Stop()
		go func() { errCh <- health.Serve(ctx, listener, 10*time.Second) }()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
