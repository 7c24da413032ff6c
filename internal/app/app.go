// Package app wires settings into a runnable ingest job.
package app

import (
	"context"

	"github.com/rs/zerolog"

	"WeeklyIngest/internal/auth"
	"WeeklyIngest/internal/config"
	"WeeklyIngest/internal/fetch"
	"WeeklyIngest/internal/ingest"
	"WeeklyIngest/internal/record"
	"WeeklyIngest/internal/schedule"
	"WeeklyIngest/internal/storage"
)

// JobName is the scheduler entry the ingest job is registered under.
const JobName = "ingest"

type App struct {
	Settings config.Settings
	Session  auth.Session
	Store    record.Store
	Job      *ingest.Job
}

// Build logs in once and assembles the job. A failed login is logged and
// leaves the session empty so each run fails fast until the process restarts.
func Build(ctx context.Context, s config.Settings, log zerolog.Logger) (*App, error) {
	target := s.Target.Record()

	store, err := storage.New(s.Database, target, log)
	if err != nil {
		return nil, err
	}

	session, err := auth.NewAuthenticator(0, log).
		Authenticate(ctx, s.Access.Endpoint, s.Access.Username, s.Access.Password)
	if err != nil {
		log.Error().Err(err).Msg("Login failed, runs will not fetch data until restart")
	}

	loc := s.Schedule.Location
	job := ingest.NewJob(
		fetch.New(s.Access.Endpoint, s.Access.DataPath, session, log),
		store,
		ingest.NewLoader(target, loc, s.Target.MaxRowFailures, log),
		loc,
		log,
	)

	return &App{Settings: s, Session: session, Store: store, Job: job}, nil
}

func (a *App) Trigger() schedule.Trigger {
	return schedule.Trigger{
		Weekday:  a.Settings.Schedule.Weekday,
		Hour:     a.Settings.Schedule.Hour,
		Minute:   a.Settings.Schedule.Minute,
		Location: a.Settings.Schedule.Location,
	}
}
