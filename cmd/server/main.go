// Package main is the entry point for the matchday server.
//
// main stays minimal: load config, build the logger, open the store and
// hand everything to internal/server. All logic lives in internal/.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sakif/matchday/internal/config"
	"github.com/sakif/matchday/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if !cfg.GitHubEnabled() {
		logger.Info("GITHUB_CLIENT_ID not set, GitHub sign-in is disabled")
	}
	if len(cfg.AdminEmails) == 0 {
		logger.Warn("ADMIN_EMAILS not set, no account will be granted admin")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := server.OpenStore(ctx, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv, err := server.New(cfg, store, logger)
	if err != nil {
		store.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
