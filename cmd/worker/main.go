// Package main is the entrypoint for the crashd symbolication worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stackshot/crashd/internal/config"
	"github.com/stackshot/crashd/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWorker()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "server_url", cfg.ServerURL, "tool", cfg.ToolPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := worker.NewHTTPClient(cfg.ServerURL, cfg.BasicAuthUser, cfg.BasicAuthPassword, cfg.RequestTimeout)
	tool := worker.NewExternalTool(cfg.ToolPath, cfg.ToolArgs, cfg.ToolTimeout)
	runner := worker.NewRunner(client, tool, cfg.WorkDir)

	// A zero poll interval means a single pass, for cron-style deployments.
	if cfg.PollInterval <= 0 {
		_, err := runner.Run(ctx)
		return err
	}

	slog.Info("worker polling", "interval", cfg.PollInterval.String())
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := runner.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			slog.Error("symbolication pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("worker stopped")
			return nil
		case <-ticker.C:
		}
	}

	slog.Info("worker stopped")
	return nil
}
