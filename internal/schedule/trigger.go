package schedule

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// Trigger fires once a week at Hour:Minute on Weekday, wall-clock time in Location.
type Trigger struct {
	Weekday  time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

func (t Trigger) location() *time.Location {
	if t.Location == nil {
		return time.UTC
	}
	return t.Location
}

// Spec renders the trigger as a standard cron expression pinned to its zone.
func (t Trigger) Spec() string {
	return fmt.Sprintf("CRON_TZ=%s %d %d * * %d", t.location(), t.Minute, t.Hour, int(t.Weekday))
}

func (t Trigger) Schedule() (cron.Schedule, error) {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return nil, errors.Newf("invalid trigger time %02d:%02d", t.Hour, t.Minute)
	}
	s, err := cron.ParseStandard(t.Spec())
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", t.Spec())
	}
	return s, nil
}

// Next returns the first fire time strictly after the given instant, or the
// zero time if the trigger is invalid.
func (t Trigger) Next(after time.Time) time.Time {
	s, err := t.Schedule()
	if err != nil {
		return time.Time{}
	}
	return s.Next(after)
}

func (t Trigger) String() string {
	return fmt.Sprintf("%s %02d:%02d %s", t.Weekday, t.Hour, t.Minute, t.location())
}
