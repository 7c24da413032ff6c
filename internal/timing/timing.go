// Package timing wraps a unit of work with elapsed-time logging.
package timing

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"WeeklyIngest/internal/record"
)

// Span is the measured interval of one call.
type Span struct {
	Name    string
	Start   time.Time
	End     time.Time
	Elapsed time.Duration
}

// Measure calls fn once and logs how long it took. fn's error is returned unchanged.
func Measure(log zerolog.Logger, loc *time.Location, name string, fn func() error) (Span, error) {
	start := time.Now()
	err := fn()
	end := time.Now()

	span := Span{Name: name, Start: start, End: end, Elapsed: end.Sub(start)}

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("function", name).
		Float64("elapsed_seconds", math.Round(span.Elapsed.Seconds()*100)/100).
		Str("finished_at", end.In(loc).Format(record.DateTimeLayout)).
		Str("elapsed", FormatClock(span.Elapsed)).
		Msgf("Function %s took %.2f seconds", name, span.Elapsed.Seconds())

	return span, err
}

// FormatClock renders d as HH:MM:SS. Hours do not wrap at 24.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}
