package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"WeeklyIngest/internal/record"
)

const progressEvery = 1000

// RowFailure is one row that could not be mapped or written.
type RowFailure struct {
	Index int
	Row   record.Row
	Err   error
}

// Report summarizes one load.
type Report struct {
	Fetched  int
	Written  int
	Failures []RowFailure
	Aborted  bool
}

// Loader writes fetched rows in order, one upsert per row.
type Loader struct {
	target      record.Target
	loc         *time.Location
	maxFailures int
	log         zerolog.Logger
	now         func() time.Time
}

// NewLoader returns a Loader that stamps rows in loc. maxFailures of 0 never aborts.
func NewLoader(target record.Target, loc *time.Location, maxFailures int, log zerolog.Logger) *Loader {
	return &Loader{
		target:      target,
		loc:         loc,
		maxFailures: maxFailures,
		log:         log.With().Str("component", "loader").Logger(),
		now:         time.Now,
	}
}

// Load never returns an error: failing rows end up in Report.Failures and the
// remaining rows are still written.
func (l *Loader) Load(ctx context.Context, rows []record.Row, w record.Writer) Report {
	rep := Report{Fetched: len(rows)}
	lastLog := time.Now()

	for i, row := range rows {
		if ctx.Err() != nil {
			rep.Aborted = true
			l.log.Warn().Err(ctx.Err()).Int("row", i).Msg("Load cancelled")
			break
		}

		stamp := record.NewStamp(l.now(), l.loc)
		rec, err := l.target.Build(i, row, stamp)
		if err == nil {
			err = w.Upsert(ctx, rec)
		}
		if err != nil {
			rep.Failures = append(rep.Failures, RowFailure{Index: i, Row: row, Err: err})
			l.log.Error().Err(err).
				Int("row", i).
				Interface("payload", row).
				Str("time", stamp.Time).
				Msg("Row write failed")

			if l.maxFailures > 0 && len(rep.Failures) > l.maxFailures {
				rep.Aborted = true
				l.log.Error().Int("failures", len(rep.Failures)).Int("max", l.maxFailures).Msg("Too many row failures, load aborted")
				break
			}
			continue
		}
		rep.Written++

		if (i+1)%progressEvery == 0 || time.Since(lastLog) > 5*time.Second {
			l.log.Info().Int("rows", i+1).Int("of", len(rows)).Msg("Load progress")
			lastLog = time.Now()
		}
	}
	return rep
}
