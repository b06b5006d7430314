package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"perpsignals/config"
	"perpsignals/internal/logger"
	"perpsignals/internal/sigengine"
)

func main() {
	config.LoadDotEnv()
	cfg := sigengine.LoadConfig()
	logger.Init("sigengine", logger.ParseLevel(cfg.LogLevel))

	svc, err := sigengine.New(cfg)
	if err != nil {
		slog.Error("init failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		slog.Error("signal engine failed", "error", err)
		os.Exit(1)
	}
}
