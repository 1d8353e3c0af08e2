package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sourcefetch/internal/app"
	"sourcefetch/internal/config"
	"sourcefetch/internal/logger"
)

func main() {
	// Initialize structured logger
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("app exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	pools, err := config.LoadCollectorPools(cfg.CollectorsFile)
	if err != nil {
		return err
	}

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(cfg, deps.DB, deps.NSQProducer, deps.PostIndex, pools)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
