package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Mark-hil/chat-app/internal/server"
	"github.com/Mark-hil/chat-app/internal/store"
	"github.com/Mark-hil/chat-app/pkg/config"
	"github.com/Mark-hil/chat-app/pkg/logging"
	"github.com/Mark-hil/chat-app/pkg/workpool"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := workpool.New(cfg.Store.Workers, cfg.Store.Queue, logger)
	defer pool.Close()

	db, err := store.Open(ctx, cfg.Database, pool, logger)
	if err != nil {
		logger.Error("failed to connect to store", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	app := server.NewApp(ctx, logger, cfg, db, db)
	if err := app.Run(); err != nil {
		logger.Error("application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application shut down successfully")
}
