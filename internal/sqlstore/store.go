// Package sqlstore writes records into MariaDB/MySQL or SQLite with one
// transaction per row.
package sqlstore

import (
	"context"
	"database/sql"
	"net"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"WeeklyIngest/internal/config"
	"WeeklyIngest/internal/record"
)

// Store opens a fresh *sql.DB for every run.
type Store struct {
	dialect Dialect
	driver  string
	dsn     string
	target  record.Target
	log     zerolog.Logger
}

func NewMySQL(db config.Database, target record.Target, log zerolog.Logger) *Store {
	cfg := mysql.NewConfig()
	cfg.User = db.Username
	cfg.Passwd = db.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
	cfg.DBName = db.Name

	return &Store{
		dialect: MySQL,
		driver:  "mysql",
		dsn:     cfg.FormatDSN(),
		target:  target,
		log:     log.With().Str("component", "sqlstore").Str("dialect", "mysql").Logger(),
	}
}

func NewSQLite(path string, target record.Target, log zerolog.Logger) *Store {
	return &Store{
		dialect: SQLite,
		driver:  "sqlite",
		dsn:     path + "?_pragma=busy_timeout(5000)",
		target:  target,
		log:     log.With().Str("component", "sqlstore").Str("dialect", "sqlite").Logger(),
	}
}

func (s *Store) Name() string { return s.dialect.String() }

// Open connects and pings. The caller owns the returned Writer.
func (s *Store) Open(ctx context.Context) (record.Writer, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", s.dialect)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s", s.dialect)
	}
	// rows are written sequentially
	db.SetMaxOpenConns(1)

	s.log.Debug().Str("table", s.target.Table).Msg("Database connection opened")
	return NewWriter(db, s.dialect, s.target), nil
}

// Writer upserts into one table through a single connection pool.
type Writer struct {
	db    *sql.DB
	query string
}

func NewWriter(db *sql.DB, d Dialect, target record.Target) *Writer {
	return &Writer{db: db, query: d.UpsertSQL(target)}
}

// Upsert runs the statement in its own transaction and commits it.
func (w *Writer) Upsert(ctx context.Context, rec record.Record) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "row %d: begin", rec.Index)
	}
	if _, err := tx.ExecContext(ctx, w.query, rec.Args()...); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "row %d: upsert", rec.Index)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "row %d: commit", rec.Index)
	}
	return nil
}

func (w *Writer) Close(context.Context) error {
	return w.db.Close()
}
