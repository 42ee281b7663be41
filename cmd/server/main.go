// Package main is the entry point for the token-keeper server.
//
// main stays minimal: load configuration, build the logger, hand both to
// internal/server, and run until SIGINT or SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/token-keeper/internal/config"
	"github.com/sakif/token-keeper/internal/logging"
	"github.com/sakif/token-keeper/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// A .env file is loaded first if present; real environment variables win.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// JSON at info in production, text at debug elsewhere. LOG_LEVEL overrides
	// both. Load has already validated it, so the error is ignored here.
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := logging.NewLogger(cfg.Environment, level)
	slog.SetDefault(logger)

	// === 3. SHUTDOWN SIGNAL ===
	// ctx is cancelled on Ctrl+C or SIGTERM; Start then drains and returns.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
