package ingest

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"WeeklyIngest/internal/fetch"
	"WeeklyIngest/internal/record"
	"WeeklyIngest/internal/sqlstore"
)

var target = record.Target{
	Table:          "ingested_rows",
	Columns:        []string{"Col1", "Col2", "Col3"},
	Fields:         []string{"Col1 value", "Col2 value", "Col3 value"},
	Keys:           []string{"Col1"},
	UpdatedColumn:  "UpdatedAt",
	InsertedColumn: "InsertedAt",
}

type staticFetcher struct {
	rows []record.Row
	err  error
}

func (f staticFetcher) Fetch(context.Context) ([]record.Row, error) { return f.rows, f.err }

type memWriter struct {
	records []record.Record
	failOn  map[string]error
	closed  bool
}

func (w *memWriter) Upsert(_ context.Context, rec record.Record) error {
	if err, ok := w.failOn[rec.Values[0].(string)]; ok {
		return err
	}
	w.records = append(w.records, rec)
	return nil
}

func (w *memWriter) Close(context.Context) error {
	w.closed = true
	return nil
}

type memStore struct {
	w       *memWriter
	openErr error
	opens   int
}

func (s *memStore) Name() string { return "mem" }

func (s *memStore) Open(context.Context) (record.Writer, error) {
	s.opens++
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.w, nil
}

func row(c1 string, c2 any, c3 any) record.Row {
	return record.Row{"Col1 value": c1, "Col2 value": c2, "Col3 value": c3}
}

func TestLoader_OneMalformedRowAmongMany(t *testing.T) {
	var buf bytes.Buffer
	w := &memWriter{}
	l := NewLoader(target, time.UTC, 0, zerolog.New(&buf))

	rows := []record.Row{
		row("A", 1, "x"),
		row("B", 2, "y"),
		{"Col1 value": "broken", "Col2 value": 3},
		row("C", 4, "z"),
	}
	rep := l.Load(context.Background(), rows, w)

	assert.Equal(t, 4, rep.Fetched)
	assert.Equal(t, 3, rep.Written)
	assert.False(t, rep.Aborted)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, 2, rep.Failures[0].Index)
	assert.True(t, errors.Is(rep.Failures[0].Err, record.ErrMalformedRow))

	require.Len(t, w.records, 3)
	assert.Equal(t, "C", w.records[2].Values[0], "rows after the failure are still written in order")

	assert.Equal(t, 1, strings.Count(buf.String(), "Row write failed"))
	assert.Contains(t, buf.String(), `"payload":{"Col1 value":"broken","Col2 value":3}`)
}

func TestLoader_WriterErrorIsRecorded(t *testing.T) {
	w := &memWriter{failOn: map[string]error{"B": errors.New("deadlock")}}
	rep := NewLoader(target, time.UTC, 0, zerolog.Nop()).Load(context.Background(), []record.Row{
		row("A", 1, "x"),
		row("B", 2, "y"),
	}, w)

	assert.Equal(t, 1, rep.Written)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "B", rep.Failures[0].Row["Col1 value"])
	assert.EqualError(t, rep.Failures[0].Err, "deadlock")
}

func TestLoader_AbortsPastThreshold(t *testing.T) {
	rows := []record.Row{{}, {}, row("A", 1, "x"), {}}
	w := &memWriter{}
	rep := NewLoader(target, time.UTC, 1, zerolog.Nop()).Load(context.Background(), rows, w)

	assert.True(t, rep.Aborted)
	assert.Len(t, rep.Failures, 2)
	assert.Zero(t, rep.Written)
	assert.Empty(t, w.records)
}

func TestLoader_StampsInLocation(t *testing.T) {
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	w := &memWriter{}
	l := NewLoader(target, warsaw, 0, zerolog.Nop())
	l.now = func() time.Time { return time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC) }

	l.Load(context.Background(), []record.Row{row("A", 1, "x")}, w)

	require.Len(t, w.records, 1)
	assert.Equal(t, "2024-01-15 16:00:00", w.records[0].Stamp.DateTime)
	assert.Equal(t, "16:00:00", w.records[0].Stamp.Time)
}

func TestLoader_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &memWriter{}
	rep := NewLoader(target, time.UTC, 0, zerolog.Nop()).Load(ctx, []record.Row{row("A", 1, "x")}, w)
	assert.True(t, rep.Aborted)
	assert.Empty(t, w.records)
}

func TestJob_Run(t *testing.T) {
	store := &memStore{w: &memWriter{}}
	job := NewJob(
		staticFetcher{rows: []record.Row{row("A", 1, "x"), row("B", 2, "y")}},
		store,
		NewLoader(target, time.UTC, 0, zerolog.Nop()),
		time.UTC,
		zerolog.Nop(),
	)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, store.opens)
	assert.True(t, store.w.closed)

	last, ok := job.History().Last()
	require.True(t, ok)
	assert.NoError(t, last.Err)
	assert.Equal(t, 2, last.Report.Written)
	assert.GreaterOrEqual(t, last.Elapsed, time.Duration(0))
	assert.False(t, last.Finished.Before(last.Started))
}

func TestJob_ConnectionFailureStopsRun(t *testing.T) {
	var buf bytes.Buffer
	store := &memStore{w: &memWriter{}, openErr: errors.New("dial tcp 10.0.0.1:3306: connect: connection refused")}
	job := NewJob(
		staticFetcher{rows: []record.Row{row("A", 1, "x")}},
		store,
		NewLoader(target, time.UTC, 0, zerolog.Nop()),
		time.UTC,
		zerolog.New(&buf),
	)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
	assert.Empty(t, store.w.records)
	assert.Contains(t, buf.String(), "connection refused")

	last, ok := job.History().Last()
	require.True(t, ok)
	assert.True(t, errors.Is(last.Err, ErrConnection))
	assert.Equal(t, 1, last.Report.Fetched)
}

func TestJob_FetchFailureSkipsConnect(t *testing.T) {
	store := &memStore{w: &memWriter{}}
	job := NewJob(
		staticFetcher{err: fetch.ErrUnauthenticated},
		store,
		NewLoader(target, time.UTC, 0, zerolog.Nop()),
		time.UTC,
		zerolog.Nop(),
	)

	err := job.Run(context.Background())
	assert.True(t, errors.Is(err, fetch.ErrUnauthenticated))
	assert.Zero(t, store.opens)
}

func TestJob_AbortedLoadIsAnError(t *testing.T) {
	store := &memStore{w: &memWriter{}}
	job := NewJob(
		staticFetcher{rows: []record.Row{{}, {}}},
		store,
		NewLoader(target, time.UTC, 1, zerolog.Nop()),
		time.UTC,
		zerolog.Nop(),
	)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
	assert.True(t, store.w.closed)
}

func TestJob_SQLiteRepeatedRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE ingested_rows (
		Col1 TEXT PRIMARY KEY,
		Col2 INTEGER,
		Col3 TEXT,
		UpdatedAt TEXT NOT NULL,
		InsertedAt TEXT NOT NULL
	)`)
	require.NoError(t, err)
	defer db.Close()

	store := sqlstore.NewSQLite(path, target, zerolog.Nop())
	loader := NewLoader(target, time.UTC, 0, zerolog.Nop())

	loader.now = func() time.Time { return time.Date(2024, 7, 1, 16, 0, 0, 0, time.UTC) }
	first := NewJob(staticFetcher{rows: []record.Row{row("A", 1, "x"), row("B", 2, "y")}}, store, loader, time.UTC, zerolog.Nop())
	require.NoError(t, first.Run(context.Background()))

	loader.now = func() time.Time { return time.Date(2024, 7, 8, 16, 0, 0, 0, time.UTC) }
	second := NewJob(staticFetcher{rows: []record.Row{row("A", 5, "x2")}}, store, loader, time.UTC, zerolog.Nop())
	require.NoError(t, second.Run(context.Background()))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ingested_rows`).Scan(&count))
	assert.Equal(t, 2, count)

	var col2 int64
	var updated, inserted string
	require.NoError(t, db.QueryRow(`SELECT Col2, UpdatedAt, InsertedAt FROM ingested_rows WHERE Col1 = 'A'`).
		Scan(&col2, &updated, &inserted))
	assert.Equal(t, int64(5), col2)
	assert.Equal(t, "2024-07-08 16:00:00", updated)
	assert.Equal(t, "2024-07-01 16:00:00", inserted)
}

func TestHistory(t *testing.T) {
	h := NewHistory(2)
	_, ok := h.Last()
	assert.False(t, ok)

	for i := 1; i <= 3; i++ {
		h.Add(RunResult{Report: Report{Written: i}})
	}
	all := h.All()
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Report.Written)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, 3, last.Report.Written)
}

func TestLoader_NullKeyNeverInserted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE ingested_rows (
		Col1 TEXT UNIQUE,
		Col2 INTEGER,
		Col3 TEXT,
		UpdatedAt TEXT NOT NULL,
		InsertedAt TEXT NOT NULL
	)`)
	require.NoError(t, err)

	store := sqlstore.NewSQLite(path, target, zerolog.Nop())
	loader := NewLoader(target, time.UTC, 0, zerolog.Nop())
	ctx := context.Background()

	for run := 0; run < 3; run++ {
		w, err := store.Open(ctx)
		require.NoError(t, err)
		rep := loader.Load(ctx, []record.Row{{"Col1 value": nil, "Col2 value": 1, "Col3 value": "x"}}, w)
		require.NoError(t, w.Close(ctx))

		assert.Zero(t, rep.Written, "run %d", run)
		require.Len(t, rep.Failures, 1, "run %d", run)
		assert.True(t, errors.Is(rep.Failures[0].Err, record.ErrMalformedRow))
	}

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ingested_rows`).Scan(&count))
	assert.Zero(t, count)
}
