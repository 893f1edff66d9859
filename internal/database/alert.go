package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ticketwatch/internal/model"
)

type alertDoc struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty"`
	WatchID   primitive.ObjectID   `bson:"watch_id"`
	UserID    string               `bson:"user_id"`
	EventName string               `bson:"event_name"`
	Price     primitive.Decimal128 `bson:"price"`
	SentAt    primitive.DateTime   `bson:"sent_at"`
}

func (ad alertDoc) toModel() (model.Alert, error) {
	price, err := fromDecimal128(ad.Price)
	if err != nil {
		return model.Alert{}, errors.WithMessagef(err, "Alert with ID: %s", ad.ID.Hex())
	}
	return model.Alert{
		ID:        ad.ID.Hex(),
		WatchID:   ad.WatchID.Hex(),
		UserID:    ad.UserID,
		EventName: ad.EventName,
		Price:     price,
		SentAt:    ad.SentAt.Time().UTC(),
	}, nil
}

func (db Database) AlertRecord(ctx context.Context, watchID string, userID string, eventName string, price decimal.Decimal) (model.Alert, error) {
	objID, err := primitive.ObjectIDFromHex(watchID)
	if err != nil {
		return model.Alert{}, errors.Wrapf(ErrNotFound, "invalid Watch ID: %s", watchID)
	}
	price128, err := toDecimal128(price)
	if err != nil {
		return model.Alert{}, err
	}

	sess, err := db.Client().StartSession()
	if err != nil {
		return model.Alert{}, errors.Wrap(err, "error starting session to record Alert")
	}
	defer sess.EndSession(ctx)

	v, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var wd watchDoc
		err := db.Collection(CollectionWatches).FindOne(sc, bson.M{"_id": objID}).Decode(&wd)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Wrapf(ErrNotFound, "error recording Alert for Watch with ID: %s", watchID)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error reading Watch with ID: %s", watchID)
		}
		if model.WatchStatus(wd.Status) == model.WatchAlerted {
			return nil, errors.Wrapf(ErrAlreadyAlerted, "error recording Alert for Watch with ID: %s", watchID)
		}

		now := primitive.NewDateTimeFromTime(time.Now())
		ad := alertDoc{
			WatchID:   objID,
			UserID:    userID,
			EventName: eventName,
			Price:     price128,
			SentAt:    now,
		}
		r, err := db.Collection(CollectionAlerts).InsertOne(sc, ad)
		if err != nil {
			return nil, errors.Wrapf(err, "error inserting Alert for Watch with ID: %s", watchID)
		}
		ad.ID = r.InsertedID.(primitive.ObjectID)

		if model.WatchStatus(wd.Status) == model.WatchActive {
			_, err = db.Collection(CollectionWatches).UpdateOne(
				sc,
				bson.M{"_id": objID, "status": string(model.WatchActive)},
				bson.M{"$set": bson.M{
					"status":     string(model.WatchAlerted),
					"alerted_at": now,
				}},
			)
			if err != nil {
				return nil, errors.Wrapf(err, "error marking Watch with ID: %s as alerted", watchID)
			}
		}
		return ad, nil
	})
	if err != nil {
		return model.Alert{}, err
	}
	return v.(alertDoc).toModel()
}

func (db Database) AlertsFindRecent(ctx context.Context, limit int) ([]model.Alert, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "sent_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(recentLimit(limit)))
	cur, err := db.Collection(CollectionAlerts).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "error getting cursor to find recent Alerts")
	}
	var ads []alertDoc
	if err = cur.All(ctx, &ads); err != nil {
		return nil, errors.Wrap(err, "error getting recent Alerts from cursor")
	}
	as := make([]model.Alert, 0, len(ads))
	for _, ad := range ads {
		a, err := ad.toModel()
		if err != nil {
			return nil, err
		}
		as = append(as, a)
	}
	return as, nil
}
