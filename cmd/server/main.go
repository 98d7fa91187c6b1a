// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/app"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/config"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/controller"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/logging"
)

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

	var wg sync.WaitGroup
	if cfg.RunScheduler {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Scheduler.Run(ctx)
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      controller.NewRouter(a.Orchestrator, a.Queue, cfg.EventToken, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting orchestrator server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	wg.Wait()

	logger.Info().Msg("server stopped")
}
