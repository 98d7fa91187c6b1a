// cmd/migrate/main.go
package main

import (
	"context"
	"flag"
	"os"

	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/config"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/db"
	"github.com/muhammad-febriansyah/chatcepat-orchestrator/internal/logging"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the *.sql migrations")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := logging.New("production", "info")
		bootLog.Fatal().Err(err).Msg("loading config")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	conn, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer conn.Close()

	ran, err := db.Migrate(ctx, conn, os.DirFS("."), *dir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
	logger.Info().Int("applied", len(ran)).Msg("database migrations completed")
}
