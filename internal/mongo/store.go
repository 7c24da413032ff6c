package mongo

import (
	"context"
	"net"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"WeeklyIngest/internal/config"
	"WeeklyIngest/internal/record"
)

// Store writes each target row as one document keyed by Target.Keys.
type Store struct {
	uri    string
	db     string
	target record.Target
	log    zerolog.Logger
}

func NewStore(db config.Database, target record.Target, log zerolog.Logger) *Store {
	u := url.URL{
		Scheme: "mongodb",
		User:   url.UserPassword(db.Username, db.Password),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   "/",
	}
	return &Store{
		uri:    u.String(),
		db:     db.Name,
		target: target,
		log:    log.With().Str("component", "mongo").Logger(),
	}
}

func (s *Store) Name() string { return config.DriverMongo }

func (s *Store) Open(ctx context.Context) (record.Writer, error) {
	cl, err := NewClient(ctx, s.uri, s.db)
	if err != nil {
		return nil, err
	}
	col := cl.DB.Collection(s.target.Table)
	if err := EnsureKeyIndex(ctx, col, s.target.Keys); err != nil {
		_ = cl.Close(ctx)
		return nil, err
	}
	s.log.Debug().Str("collection", s.target.Table).Msg("Mongo connection opened")

	w := NewWriter(col, s.target)
	w.client = cl
	return w, nil
}

// Writer upserts into one collection. client is nil when the caller owns the connection.
type Writer struct {
	col    *mongo.Collection
	target record.Target
	client *Client
}

func NewWriter(col *mongo.Collection, target record.Target) *Writer {
	return &Writer{col: col, target: target}
}

// Upsert matches on the key columns, refreshes the rest and the updated-at
// field, and writes the inserted-at field only when the document is new.
func (w *Writer) Upsert(ctx context.Context, rec record.Record) error {
	filter := bson.D{}
	set := bson.D{}
	for i, c := range w.target.Columns {
		e := bson.E{Key: c, Value: rec.Values[i]}
		if w.target.IsKey(c) {
			filter = append(filter, e)
		} else {
			set = append(set, e)
		}
	}
	set = append(set, bson.E{Key: w.target.UpdatedColumn, Value: rec.Stamp.DateTime})

	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{{Key: w.target.InsertedColumn, Value: rec.Stamp.DateTime}}},
	}
	if _, err := w.col.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return errors.Wrapf(err, "row %d: upsert", rec.Index)
	}
	return nil
}

func (w *Writer) Close(ctx context.Context) error {
	if w.client == nil {
		return nil
	}
	return w.client.Close(ctx)
}
