package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/argon-desk/argon_desk/internal/broker"
	"github.com/argon-desk/argon_desk/internal/config"
	"github.com/argon-desk/argon_desk/internal/infra"
	"github.com/argon-desk/argon_desk/internal/ledger"
	"github.com/argon-desk/argon_desk/internal/logging"
	"github.com/argon-desk/argon_desk/internal/mainchain"
	"github.com/argon-desk/argon_desk/internal/manager"
	"github.com/argon-desk/argon_desk/internal/notification"
	"github.com/argon-desk/argon_desk/internal/profile"
	"github.com/argon-desk/argon_desk/internal/routes"
	"github.com/argon-desk/argon_desk/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewWithFile(cfg.LogLevel, cfg.LogFile)

	ctx := context.Background()

	var db *pgxpool.Pool
	var profiles profile.Repository = profile.NewFileRepository(cfg.ProfilePath)
	if cfg.ProfileDatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.ProfileDatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repo := profile.NewPostgresRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("ensure profile schema", "error", err)
			os.Exit(1)
		}
		profiles = repo
	}

	sinks := []notification.Notifier{notification.NewLoggerNotifier(logger)}
	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		sinks = append(sinks, notification.NewRedisNotifier(cache, cfg.UpdatesChannel))
	}

	opts := manager.Options{
		Chain:            cfg.ChainConfig(),
		LocalchainDir:    cfg.LocalchainDir,
		MainchainURL:     cfg.MainchainURL,
		MainchainTimeout: cfg.MainchainTimeout,
		Profiles:         profile.NewService(profiles),
		Escrow:           broker.HTTPEscrowSource{Timeout: cfg.BrokerTimeout},
		Sinks:            sinks,
		Open:             ledger.Open,
		Logger:           logger,
	}
	if cfg.LocalchainPassword != "" {
		opts.Password = []byte(cfg.LocalchainPassword)
	}
	if cfg.UsesDevMainchain() {
		opts.Dial = devDialer(cfg, logger)
	}

	mgr, err := manager.New(opts)
	if err != nil {
		logger.Error("build account manager", "error", err)
		os.Exit(1)
	}
	if err := mgr.Start(ctx); err != nil {
		logger.Error("start account manager", "error", err)
		_ = mgr.Close(ctx)
		os.Exit(1)
	}

	srv, err := server.New(routes.Deps{Cfg: cfg, Manager: mgr, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		logger.Error("build server", "error", err)
		_ = mgr.Close(ctx)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		_ = mgr.Close(ctx)
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

// devDialer serves an in-memory mainchain from this process.
func devDialer(cfg config.Config, logger *slog.Logger) mainchain.Dialer {
	genesis := cfg.ChainConfig().GenesisUTCTime
	if genesis.IsZero() {
		genesis = time.Now().UTC().Truncate(cfg.TickDuration)
	}
	chain := mainchain.NewDevChain(genesis, cfg.TickDuration)
	logger.Warn("using in-process development mainchain")
	return func(_ context.Context, _ string, timeout time.Duration) (mainchain.Client, error) {
		client, err := chain.InProcClient(timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}
