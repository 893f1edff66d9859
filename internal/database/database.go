package database

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	Name              = "ticketwatch_db"
	CollectionUsers   = "users"
	CollectionWatches = "watches"
	CollectionAlerts  = "alerts_sent"
)

// Database is the MongoDB Store. AlertRecord runs in a multi-document transaction, so the
// server must be a replica set or a sharded cluster.
type Database struct {
	*mongo.Database
}

func ConnectDB(ctx context.Context, dbURI string) (*mongo.Client, error) {
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(dbURI))
	if err != nil {
		return nil, errors.Wrapf(err, "error connecting to: %s", dbURI)
	}
	if err = c.Ping(ctx, nil); err != nil {
		_ = c.Disconnect(ctx)
		return nil, errors.Wrapf(err, "error pinging: %s", dbURI)
	}
	return c, nil
}

func (db Database) EnsureIndexes(ctx context.Context) error {
	_, err := db.Collection(CollectionWatches).Indexes().CreateMany(
		ctx,
		[]mongo.IndexModel{
			{
				// At most one non-cancelled watch per user and event.
				Keys: bson.D{
					{Key: "user_id", Value: 1},
					{Key: "event_id", Value: 1},
				},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"cancelled": false}),
			},
			{
				Keys: bson.D{
					{Key: "status", Value: 1},
					{Key: "last_checked", Value: 1},
				},
			},
			{
				Keys: bson.D{
					{Key: "user_id", Value: 1},
					{Key: "status", Value: 1},
					{Key: "created_at", Value: -1},
				},
			},
		},
	)
	if err != nil {
		return errors.Wrapf(err, "error creating indexes on: %s", CollectionWatches)
	}

	_, err = db.Collection(CollectionAlerts).Indexes().CreateMany(
		ctx,
		[]mongo.IndexModel{
			{Keys: bson.D{{Key: "watch_id", Value: 1}}},
			{Keys: bson.D{{Key: "sent_at", Value: -1}}},
		},
	)
	return errors.Wrapf(err, "error creating indexes on: %s", CollectionAlerts)
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	d128, err := primitive.ParseDecimal128(d.String())
	return d128, errors.Wrapf(err, "error converting decimal: %s", d.String())
}

func fromDecimal128(d128 primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(d128.String())
	return d, errors.Wrapf(err, "error converting decimal128: %s", d128.String())
}
