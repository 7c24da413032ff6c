// @title           WeeklyIngest status API
// @version         1.0
// @description     Read-only view of the weekly ingest job: health, recent runs, next fire time.
// @BasePath        /
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"WeeklyIngest/internal/app"
	"WeeklyIngest/internal/config"
	"WeeklyIngest/internal/httpx"
	"WeeklyIngest/internal/record"
	"WeeklyIngest/internal/schedule"
	"WeeklyIngest/pkg/logger"
)

func init() {
	_ = godotenv.Load()
}

func main() {
	s, err := config.Load(config.Path())
	if err != nil {
		l := logger.New(logger.Config{})
		l.Fatal().Err(err).Msg("Loading config")
	}

	log := logger.New(logger.Config{Level: s.Log.Level, Pretty: s.Log.Pretty})
	log.Info().
		Str("started_at", time.Now().In(s.Schedule.Location).Format(record.DateTimeLayout)).
		Msg("Weekly ingest started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, s, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Building ingest job")
	}

	sched := schedule.New(log)
	if err := sched.Add(a.Trigger(), app.JobName, a.Job.Run); err != nil {
		log.Fatal().Err(err).Msg("Registering ingest job")
	}

	if s.Status.Addr != "" {
		srv := &http.Server{
			Addr: s.Status.Addr,
			Handler: httpx.NewRouter(httpx.Deps{
				Runs:          a.Job.History(),
				Schedule:      sched,
				Job:           app.JobName,
				Store:         a.Store.Name(),
				Location:      s.Schedule.Location,
				RatePerMinute: s.Status.RatePerMinute,
				Log:           log,
			}),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", s.Status.Addr).Msg("Status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Status server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sched.Run(ctx)
	log.Info().Msg("Weekly ingest stopped")
}
