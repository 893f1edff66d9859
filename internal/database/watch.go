package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ticketwatch/internal/model"
)

type watchDoc struct {
	ID          primitive.ObjectID    `bson:"_id,omitempty"`
	UserID      string                `bson:"user_id"`
	EventID     string                `bson:"event_id"`
	EventName   string                `bson:"event_name"`
	Venue       string                `bson:"venue"`
	DateStart   string                `bson:"date_start"`
	MaxPrice    *primitive.Decimal128 `bson:"max_price"`
	Quantity    int                   `bson:"quantity"`
	Status      string                `bson:"status"`
	Cancelled   bool                  `bson:"cancelled"`
	CreatedAt   primitive.DateTime    `bson:"created_at"`
	LastChecked *primitive.DateTime   `bson:"last_checked"`
	AlertedAt   *primitive.DateTime   `bson:"alerted_at"`
	BuyURL      string                `bson:"buy_url"`
}

func (wd watchDoc) toModel() (model.Watch, error) {
	w := model.Watch{
		ID:        wd.ID.Hex(),
		UserID:    wd.UserID,
		EventID:   wd.EventID,
		EventName: wd.EventName,
		Venue:     wd.Venue,
		DateStart: wd.DateStart,
		Quantity:  wd.Quantity,
		Status:    model.WatchStatus(wd.Status),
		CreatedAt: wd.CreatedAt.Time().UTC(),
		BuyURL:    wd.BuyURL,
	}
	if wd.MaxPrice != nil {
		d, err := fromDecimal128(*wd.MaxPrice)
		if err != nil {
			return w, errors.WithMessagef(err, "Watch with ID: %s", w.ID)
		}
		w.MaxPrice.Decimal, w.MaxPrice.Valid = d, true
	}
	if wd.LastChecked != nil {
		t := wd.LastChecked.Time().UTC()
		w.LastChecked = &t
	}
	if wd.AlertedAt != nil {
		t := wd.AlertedAt.Time().UTC()
		w.AlertedAt = &t
	}
	return w, nil
}

func (db Database) watchesFind(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Watch, error) {
	cur, err := db.Collection(CollectionWatches).Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "error getting cursor to find Watches, filter: %v", filter)
	}
	var wds []watchDoc
	if err = cur.All(ctx, &wds); err != nil {
		return nil, errors.Wrapf(err, "error getting Watches from cursor, filter: %v", filter)
	}
	ws := make([]model.Watch, 0, len(wds))
	for _, wd := range wds {
		w, err := wd.toModel()
		if err != nil {
			return nil, err
		}
		ws = append(ws, w)
	}
	return ws, nil
}

func (db Database) watchOpenFind(ctx context.Context, userID string, eventID string) (watchDoc, error) {
	var wd watchDoc
	err := db.Collection(CollectionWatches).FindOne(
		ctx,
		bson.M{"user_id": userID, "event_id": eventID, "cancelled": false},
	).Decode(&wd)
	return wd, err
}

func (db Database) WatchInsert(ctx context.Context, nw model.NewWatch) (string, error) {
	if err := validateNewWatch(nw); err != nil {
		return "", err
	}

	wd := watchDoc{
		UserID:    nw.UserID,
		EventID:   nw.EventID,
		EventName: nw.EventName,
		Venue:     nw.Venue,
		DateStart: nw.DateStart,
		Quantity:  nw.Quantity,
		Status:    string(model.WatchActive),
		CreatedAt: primitive.NewDateTimeFromTime(time.Now()),
		BuyURL:    nw.BuyURL,
	}
	if nw.MaxPrice.Valid {
		d128, err := toDecimal128(nw.MaxPrice.Decimal)
		if err != nil {
			return "", err
		}
		wd.MaxPrice = &d128
	}

	sess, err := db.Client().StartSession()
	if err != nil {
		return "", errors.Wrap(err, "error starting session to insert Watch")
	}
	defer sess.EndSession(ctx)

	v, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// Touching the user document makes concurrent inserts for the same user
		// write-conflict, so the active count below cannot go stale before the insert.
		ur, err := db.Collection(CollectionUsers).UpdateOne(
			sc,
			bson.M{"_id": nw.UserID},
			bson.M{"$inc": bson.M{"watch_inserts": 1}},
		)
		if err != nil {
			return nil, errors.Wrapf(err, "error locking User with ID: %s", nw.UserID)
		}
		if ur.MatchedCount == 0 {
			return nil, errors.Wrapf(ErrNotFound, "error inserting Watch, no User with ID: %s", nw.UserID)
		}

		existing, err := db.watchOpenFind(sc, nw.UserID, nw.EventID)
		if err == nil {
			return nil, &ConflictError{UserID: nw.UserID, EventID: nw.EventID, ExistingWatchID: existing.ID.Hex()}
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.Wrapf(err, "error finding existing Watch for user: %s, event: %s", nw.UserID, nw.EventID)
		}

		if nw.MaxActive > 0 {
			active, err := db.Collection(CollectionWatches).CountDocuments(
				sc,
				bson.M{"user_id": nw.UserID, "status": string(model.WatchActive)},
			)
			if err != nil {
				return nil, errors.Wrapf(err, "error counting active Watches for user: %s", nw.UserID)
			}
			if err = checkActiveLimit(nw, int(active)); err != nil {
				return nil, err
			}
		}

		r, err := db.Collection(CollectionWatches).InsertOne(sc, wd)
		if err != nil {
			return nil, err
		}
		return r.InsertedID.(primitive.ObjectID).Hex(), nil
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost a race with a concurrent insert for the same pair.
			ce := &ConflictError{UserID: nw.UserID, EventID: nw.EventID}
			if existing, ferr := db.watchOpenFind(ctx, nw.UserID, nw.EventID); ferr == nil {
				ce.ExistingWatchID = existing.ID.Hex()
			}
			return "", ce
		}
		var ce *ConflictError
		var le *ActiveLimitError
		if errors.Is(err, ErrNotFound) || errors.As(err, &ce) || errors.As(err, &le) {
			return "", err
		}
		return "", errors.Wrapf(err, "error inserting Watch for user: %s, event: %s", nw.UserID, nw.EventID)
	}
	return v.(string), nil
}

func (db Database) WatchFindByID(ctx context.Context, watchID string) (model.Watch, error) {
	objID, err := primitive.ObjectIDFromHex(watchID)
	if err != nil {
		return model.Watch{}, errors.Wrapf(ErrNotFound, "invalid Watch ID: %s", watchID)
	}
	var wd watchDoc
	err = db.Collection(CollectionWatches).FindOne(ctx, bson.M{"_id": objID}).Decode(&wd)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Watch{}, errors.Wrapf(ErrNotFound, "error finding Watch with ID: %s", watchID)
	}
	if err != nil {
		return model.Watch{}, errors.Wrapf(err, "error finding Watch with ID: %s", watchID)
	}
	return wd.toModel()
}

func (db Database) WatchesFindByUser(ctx context.Context, userID string, status model.WatchStatus) ([]model.Watch, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	return db.watchesFind(ctx, bson.M{"user_id": userID, "status": string(status)}, opts)
}

func (db Database) WatchesFindActive(ctx context.Context) ([]model.Watch, error) {
	// null last_checked sorts before any date.
	opts := options.Find().SetSort(bson.D{
		{Key: "last_checked", Value: 1},
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	return db.watchesFind(ctx, bson.M{"status": string(model.WatchActive)}, opts)
}

func (db Database) WatchesCountActive(ctx context.Context, userID string) (int, error) {
	n, err := db.Collection(CollectionWatches).CountDocuments(
		ctx,
		bson.M{"user_id": userID, "status": string(model.WatchActive)},
	)
	return int(n), errors.Wrapf(err, "error counting active Watches for user: %s", userID)
}

// statusWriteAttempts bounds the compare-and-set loop in WatchStatusUpdate.
const statusWriteAttempts = 3

func (db Database) WatchStatusUpdate(ctx context.Context, watchID string, status model.WatchStatus, checkedAt time.Time) error {
	objID, err := primitive.ObjectIDFromHex(watchID)
	if err != nil {
		return errors.Wrapf(ErrNotFound, "invalid Watch ID: %s", watchID)
	}

	set := bson.M{
		"status":    string(status),
		"cancelled": status == model.WatchCancelled,
	}
	if !checkedAt.IsZero() {
		set["last_checked"] = primitive.NewDateTimeFromTime(checkedAt)
	}

	for i := 0; i < statusWriteAttempts; i++ {
		var wd watchDoc
		err = db.Collection(CollectionWatches).FindOne(ctx, bson.M{"_id": objID}).Decode(&wd)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return errors.Wrapf(ErrNotFound, "error updating status of Watch with ID: %s", watchID)
		}
		if err != nil {
			return errors.Wrapf(err, "error reading status of Watch with ID: %s", watchID)
		}
		if err = checkStatusWrite(watchID, model.WatchStatus(wd.Status), status); err != nil {
			return err
		}

		// Conditional on the status just read so a concurrent transition is not overwritten.
		res, err := db.Collection(CollectionWatches).UpdateOne(
			ctx,
			bson.M{"_id": objID, "status": wd.Status},
			bson.M{"$set": set},
		)
		if err != nil {
			return errors.Wrapf(err, "error updating status of Watch with ID: %s, status: %s", watchID, status)
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return errors.Errorf("Watch with ID: %s kept changing while updating status to: %s", watchID, status)
}
