package timing

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasure(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	before := time.Now()
	calls := 0
	span, err := Measure(log, time.UTC, "ingest", func() error {
		calls++
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	after := time.Now()

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "ingest", span.Name)
	assert.GreaterOrEqual(t, span.Elapsed, 10*time.Millisecond)
	assert.LessOrEqual(t, span.Elapsed, after.Sub(before))
	assert.Equal(t, span.End.Sub(span.Start), span.Elapsed)
	assert.False(t, span.Start.Before(before))
	assert.False(t, span.End.After(after))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "ingest", entry["function"])
	assert.Equal(t, "00:00:00", entry["elapsed"])
	secs, ok := entry["elapsed_seconds"].(float64)
	require.True(t, ok, "elapsed_seconds is numeric")
	assert.GreaterOrEqual(t, secs, 0.0)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, entry["finished_at"])
	assert.Contains(t, entry["message"], "Function ingest took")
}

func TestMeasure_ReturnsErrorUnchanged(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")

	span, err := Measure(zerolog.New(&buf), time.UTC, "ingest", func() error { return boom })

	assert.Same(t, boom, err)
	assert.GreaterOrEqual(t, span.Elapsed, time.Duration(0))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestMeasure_FinishedAtInLocation(t *testing.T) {
	var buf bytes.Buffer
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	span, _ := Measure(zerolog.New(&buf), warsaw, "x", func() error { return nil })
	assert.Contains(t, buf.String(), span.End.In(warsaw).Format("2006-01-02 15:04:05"))
}

func TestFormatClock(t *testing.T) {
	testCases := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{1500 * time.Millisecond, "00:00:01"},
		{61 * time.Second, "00:01:01"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{26 * time.Hour, "26:00:00"},
		{-time.Second, "00:00:00"},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatClock(tc.in))
		})
	}
}
