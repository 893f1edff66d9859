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

type userDoc struct {
	ID           string             `bson:"_id"`
	Contact      string             `bson:"contact"`
	Tier         string             `bson:"tier"`
	CreatedAt    primitive.DateTime `bson:"created_at"`
	LastActivity primitive.DateTime `bson:"last_activity"`
}

func (db Database) UserUpsert(ctx context.Context, userID string, contact string) error {
	if userID == "" {
		return errors.New("error upserting User: empty user id")
	}
	now := primitive.NewDateTimeFromTime(time.Now())
	_, err := db.Collection(CollectionUsers).UpdateOne(
		ctx,
		bson.M{"_id": userID},
		bson.M{
			"$set": bson.M{
				"contact":       contact,
				"last_activity": now,
			},
			"$setOnInsert": bson.M{
				"tier":       string(model.TierFree),
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	return errors.Wrapf(err, "error upserting User with ID: %s", userID)
}

func (db Database) UserFindByID(ctx context.Context, userID string) (model.User, error) {
	var ud userDoc
	err := db.Collection(CollectionUsers).FindOne(ctx, bson.M{"_id": userID}).Decode(&ud)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, errors.Wrapf(ErrNotFound, "error finding User with ID: %s", userID)
	}
	if err != nil {
		return model.User{}, errors.Wrapf(err, "error finding User with ID: %s", userID)
	}
	return model.User{
		ID:           ud.ID,
		Contact:      ud.Contact,
		Tier:         model.Tier(ud.Tier),
		CreatedAt:    ud.CreatedAt.Time().UTC(),
		LastActivity: ud.LastActivity.Time().UTC(),
	}, nil
}

func (db Database) UserTierUpdate(ctx context.Context, userID string, tier model.Tier) error {
	res, err := db.Collection(CollectionUsers).UpdateOne(
		ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"tier": string(tier)}},
	)
	if err != nil {
		return errors.Wrapf(err, "error updating tier of User with ID: %s", userID)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(ErrNotFound, "error updating tier of User with ID: %s", userID)
	}
	return nil
}
