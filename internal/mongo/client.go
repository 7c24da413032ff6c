package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Client struct {
	DB *mongo.Database
	c  *mongo.Client
}

// NewClient connects and pings the primary so a dead server fails the run up front.
func NewClient(ctx context.Context, uri, db string) (*Client, error) {
	cl, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10*time.Second))
	if err != nil {
		return nil, errors.Wrap(err, "mongo connect")
	}
	if err := cl.Ping(ctx, readpref.Primary()); err != nil {
		_ = cl.Disconnect(ctx)
		return nil, errors.Wrap(err, "mongo ping")
	}
	return &Client{DB: cl.Database(db), c: cl}, nil
}

func (c *Client) Close(ctx context.Context) error { return c.c.Disconnect(ctx) }

// EnsureKeyIndex creates the unique index the upsert merges on.
func EnsureKeyIndex(ctx context.Context, col *mongo.Collection, keys []string) error {
	spec := bson.D{}
	for _, k := range keys {
		spec = append(spec, bson.E{Key: k, Value: 1})
	}
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    spec,
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrapf(err, "ensure unique index on %s", col.Name())
}
