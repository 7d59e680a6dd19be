package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/deepuanant/tickrelay/internal/catalog"
	"github.com/deepuanant/tickrelay/internal/config"
	"github.com/deepuanant/tickrelay/internal/connection"
	"github.com/deepuanant/tickrelay/internal/egress"
	"github.com/deepuanant/tickrelay/internal/kite"
	"github.com/deepuanant/tickrelay/internal/metrics"
	"github.com/deepuanant/tickrelay/internal/model"
	"github.com/deepuanant/tickrelay/internal/scheduler"
	"github.com/deepuanant/tickrelay/internal/store"
	"github.com/deepuanant/tickrelay/internal/upstream"
	"github.com/deepuanant/tickrelay/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env file")
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	creds, err := config.LoadCredentials()
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}
	if creds.AppEnv != "" {
		cfg.Server.Env = creds.AppEnv
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"auth_method", creds.AuthMethod,
		"server_env", cfg.Server.Env,
	)

	dialer, err := kite.NewDialer(creds, cfg.Relay.ConnectTimeout)
	if err != nil {
		logger.Error("failed to build broker session", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Load the instrument catalog (cache-first, 24h validity).
	catalogClient := catalog.New(cfg.Catalog.URL, cfg.Catalog.CachePath,
		catalog.WithLogger(logger),
		catalog.WithCacheTTL(cfg.Catalog.CacheTTL),
	)
	instruments, err := catalogClient.Load(ctx)
	if err != nil {
		logger.Error("failed to load instrument catalog", "error", err)
		os.Exit(1)
	}

	tickStore := store.New()
	server := egress.NewServer(cfg.Server, tickStore, logger)
	tickStore.SetListener(func(count int) {
		metrics.SnapshotSize.Set(float64(tickStore.Len()))
		server.PublishSnapshot()
	})

	sup := connection.NewSupervisor(
		connection.Config{
			MaxRetries: cfg.Relay.MaxRetries,
			RetryDelay: cfg.Relay.RetryDelay,
		},
		dialer,
		func(connID int, ticks []model.Tick) {
			metrics.TicksReceived.WithLabelValues(metrics.ConnLabel(connID)).Add(float64(len(ticks)))
			tickStore.Update(ticks)
		},
		logger,
	)

	sched := scheduler.New(scheduler.Config{
		SymbolsPerConnection: cfg.Relay.SymbolsPerConnection,
		Stride:               cfg.Relay.Stride,
		CycleInterval:        cfg.Relay.CycleInterval,
		CommandGap:           cfg.Relay.CommandGap,
	}, sup, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		defer sup.Shutdown()
		err := sched.Run(gctx, instruments)
		if errors.Is(err, upstream.ErrAuth) {
			logger.Error("startup aborted: broker rejected credentials")
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}
