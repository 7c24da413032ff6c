// Package ingest runs the fetch, connect, upsert cycle and keeps a short run history.
package ingest

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"WeeklyIngest/internal/fetch"
	"WeeklyIngest/internal/record"
	"WeeklyIngest/internal/timing"
)

// ErrConnection marks a run that stopped because the database could not be reached.
var ErrConnection = errors.New("database connection failed")

type Job struct {
	fetcher fetch.Fetcher
	store   record.Store
	loader  *Loader
	loc     *time.Location
	log     zerolog.Logger
	history *History
}

func NewJob(fetcher fetch.Fetcher, store record.Store, loader *Loader, loc *time.Location, log zerolog.Logger) *Job {
	return &Job{
		fetcher: fetcher,
		store:   store,
		loader:  loader,
		loc:     loc,
		log:     log.With().Str("component", "ingest").Str("store", store.Name()).Logger(),
		history: NewHistory(defaultHistorySize),
	}
}

func (j *Job) History() *History { return j.history }

// Run executes one ingest and records the result in History.
func (j *Job) Run(ctx context.Context) error {
	j.log.Info().Str("started_at", time.Now().In(j.loc).Format(record.DateTimeLayout)).Msg("Ingest started")

	var rep Report
	span, err := timing.Measure(j.log, j.loc, "ingest", func() error {
		var err error
		rep, err = j.run(ctx)
		return err
	})

	j.history.Add(RunResult{
		Started:  span.Start,
		Finished: span.End,
		Elapsed:  span.Elapsed,
		Report:   rep,
		Err:      err,
	})
	return err
}

func (j *Job) run(ctx context.Context) (Report, error) {
	rows, err := j.fetcher.Fetch(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "fetch")
	}

	w, err := j.store.Open(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Database connection failed, run stopped")
		return Report{Fetched: len(rows)}, errors.Mark(errors.Wrapf(err, "open %s", j.store.Name()), ErrConnection)
	}
	defer func() {
		if cerr := w.Close(ctx); cerr != nil {
			j.log.Warn().Err(cerr).Msg("Closing database connection")
		}
	}()

	rep := j.loader.Load(ctx, rows, w)
	j.log.Info().
		Int("fetched", rep.Fetched).
		Int("written", rep.Written).
		Int("failed", len(rep.Failures)).
		Msg("Ingest finished")

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if rep.Aborted {
		return rep, errors.Newf("load aborted after %d row failures", len(rep.Failures))
	}
	return rep, nil
}
