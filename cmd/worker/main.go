// cmd/worker/main.go
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/app"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/config"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/logging"
)

// The worker drives campaigns and consumes transport live-state events
// without serving HTTP. Pair it with RUN_SCHEDULER=false on the servers.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := logging.New("production", "info")
		bootLog.Fatal().Err(err).Msg("loading config")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("wiring orchestrator")
	}
	defer a.Close()

	if err := a.SubscribeChannelEvents(ctx); err != nil {
		logger.Fatal().Err(err).Msg("subscribing to channel events")
	}

	logger.Info().Msg("worker running, waiting for campaigns...")
	a.Scheduler.Run(ctx)
	logger.Info().Msg("worker stopped")
}
