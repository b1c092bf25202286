package model

import (
	"context"
	"time"

	"PPulse/data/database"
	mgoSrv "PPulse/service/mgo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PresenceMirror is the durable, queryable index of presence ("who was
// active in the last 24h"). It is written on state flips plus a coarse
// heartbeat and is never consulted for real-time suppression.
type PresenceMirror struct {
	UserID     string    `bson:"user_id"` // PK
	IsOnline   bool      `bson:"is_online"`
	LastSeenAt time.Time `bson:"last_seen_at"`
}

func (PresenceMirror) GetTableName() string {
	return "presence_mirror"
}

func (p PresenceMirror) Collection() *mongo.Collection {
	return mgoSrv.GetDB().Collection(p.GetTableName())
}

var _ database.Table = PresenceMirror{}

// MirrorStore implements presence.Mirror on mongo.
type MirrorStore struct{}

func (MirrorStore) SetOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	_, err := PresenceMirror{}.Collection().UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"is_online": online, "last_seen_at": at}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (MirrorStore) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := PresenceMirror{}.Collection().UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"last_seen_at": at}},
	)
	return err
}
