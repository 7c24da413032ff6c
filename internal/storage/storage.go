// Package storage picks the record.Store for the configured database driver.
package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"WeeklyIngest/internal/config"
	"WeeklyIngest/internal/mongo"
	"WeeklyIngest/internal/record"
	"WeeklyIngest/internal/sqlstore"
)

func New(db config.Database, target record.Target, log zerolog.Logger) (record.Store, error) {
	switch db.Driver {
	case config.DriverMySQL:
		return sqlstore.NewMySQL(db, target, log), nil
	case config.DriverSQLite:
		return sqlstore.NewSQLite(db.Path, target, log), nil
	case config.DriverMongo:
		return mongo.NewStore(db, target, log), nil
	default:
		return nil, errors.Newf("unsupported database driver %q", db.Driver)
	}
}
