package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"WeeklyIngest/internal/app"
	"WeeklyIngest/internal/config"
	"WeeklyIngest/pkg/logger"
)

func init() {
	_ = godotenv.Load()
}

// One run now, outside the weekly trigger. Exits non-zero on failure.
func main() {
	s, err := config.Load(config.Path())
	if err != nil {
		l := logger.New(logger.Config{})
		l.Fatal().Err(err).Msg("Loading config")
	}
	log := logger.New(logger.Config{Level: s.Log.Level, Pretty: s.Log.Pretty})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, s, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Building ingest job")
	}
	if err := a.Job.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Ingest failed")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("Ingest done")
}
