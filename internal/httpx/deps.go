package httpx

import (
	"time"

	"github.com/rs/zerolog"

	"WeeklyIngest/internal/ingest"
)

// NextFirer reports the next fire time of a named job.
type NextFirer interface {
	Next(name string) time.Time
}

// Deps is everything the status handlers read. Nothing here is written by the router.
type Deps struct {
	Runs          *ingest.History
	Schedule      NextFirer
	Job           string
	Store         string
	Location      *time.Location
	RatePerMinute int
	Log           zerolog.Logger
}
