// Command reconcile recomputes every user's points from the finished matches
// once and prints the summary as JSON. It uses the same environment as the
// server.
package main

import (
	"context"
	"encoding/json"
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

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := server.OpenStore(ctx, cfg)
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
	defer srv.Close()

	summary, err := srv.Leaderboard().Recompute(ctx)
	if err != nil {
		logger.Error("recompute failed", slog.String("error", err.Error()))
		srv.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logger.Error("writing summary", slog.String("error", err.Error()))
	}
}
