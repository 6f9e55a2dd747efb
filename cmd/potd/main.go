package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"potchain/cmd/internal/secret"
	"potchain/config"
	"potchain/core"
	"potchain/core/events"
	"potchain/observability/logging"
	"potchain/observability/otel"
	"potchain/rpc"
	"potchain/storage"
	"potchain/storage/eventlog"
	"potchain/storage/export"
)

const (
	serviceName    = "potd"
	eventBacklog   = 256
	shutdownWindow = 5 * time.Second
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides config GenesisFile)")
	issueToken := flag.String("issue-admin-token", "", "Print an admin JWT for the given subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of tokens printed by -issue-admin-token")
	exportLedger := flag.String("export-ledger", "", "Write the vote ledger as parquet to this path and exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.Logging.Level)
	logger := logging.Setup(logging.Options{
		Service:    serviceName,
		Env:        cfg.Environment,
		Level:      level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	if *issueToken != "" {
		key, err := secret.NewSource(cfg.RPC.JWTSecretEnv, true).Get()
		if err != nil {
			logger.Error("admin secret unavailable", slog.Any("error", err))
			os.Exit(1)
		}
		token, err := rpc.IssueAdminToken(key, *issueToken, *tokenTTL)
		if err != nil {
			logger.Error("issue admin token", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, *configFile, *genesisFlag, *exportLedger, logger); err != nil {
		logger.Error("potd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configFile, genesisFlag, exportPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.Open(cfg.StateBackend, filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	hub := events.NewHub(cfg.RPC.EventBuffer, eventBacklog)
	rtCfg, err := runtimeConfig(cfg, hub, logger)
	if err != nil {
		return err
	}
	runtime, err := core.NewRuntime(db, rtCfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	if exportPath != "" {
		return writeLedgerExport(runtime, exportPath, logger)
	}

	if err := applyGenesis(runtime, resolveGenesisPath(genesisFlag, cfg.GenesisFile, configFile), logger); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	var history rpc.EventHistory
	if cfg.EventLog.Driver != "" {
		gdb, err := eventlog.Open(cfg.EventLog.Driver, eventLogDSN(cfg))
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		store, err := eventlog.New(gdb)
		if err != nil {
			return err
		}
		history = store
		updates, cancel := hub.Subscribe()
		defer cancel()
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Consume(ctx, updates, func(err error) {
				logger.Warn("event log append failed", slog.Any("error", err))
			})
		}()
	}

	jwtSecret, err := secret.NewSource(cfg.RPC.JWTSecretEnv, false).Get()
	if err != nil {
		if !errors.Is(err, secret.ErrUnavailable) {
			return err
		}
		logger.Warn("admin api disabled", slog.String("env", cfg.RPC.JWTSecretEnv))
	}
	server := rpc.NewServer(runtime, hub, history, rpc.Config{
		JWTSecret:          jwtSecret,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		Burst:              cfg.RPC.Burst,
		Logger:             logger,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(ctx, cfg.RPCAddress); err != nil {
			errCh <- fmt.Errorf("http api: %w", err)
		}
	}()

	if cfg.MetricsAddress != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveMetrics(ctx, cfg.MetricsAddress, logger); err != nil {
				errCh <- fmt.Errorf("metrics: %w", err)
			}
		}()
	}

	if cfg.Era.SessionDurationSeconds > 0 {
		clock := &sessionClock{
			driver:   runtime,
			interval: time.Duration(cfg.Era.SessionDurationSeconds) * time.Second,
			logger:   logger.With("component", "session-clock"),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Run(ctx)
		}()
	} else {
		logger.Info("session clock disabled, waiting for an external session engine")
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-errCh:
		stop()
	}
	wg.Wait()
	return runErr
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func writeLedgerExport(runtime *core.Runtime, path string, logger *slog.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	entries := runtime.LedgerEntries()
	if err := export.WriteLedger(f, entries); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info("vote ledger exported", "path", path, "entries", len(entries))
	return nil
}
