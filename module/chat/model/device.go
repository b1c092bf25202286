package model

import (
	"context"
	"time"

	mgoSrv "PPulse/service/mgo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Device is one registered push target. A user may hold several (phone,
// tablet, web); tokens are provider-issued and rotate.
type Device struct {
	UserID     string    `bson:"user_id"`
	Token      string    `bson:"token"`    // PK together with user_id
	Platform   string    `bson:"platform"` // android, ios, web
	UpdateTime time.Time `bson:"update_time"`
}

func (Device) GetTableName() string {
	return "device"
}

func (d Device) Collection() *mongo.Collection {
	return mgoSrv.GetDB().Collection(d.GetTableName())
}

// DevicesForUsers multi-gets by user ID list. Callers chunk the list to the
// store's multi-get comfort size before calling.
func DevicesForUsers(ctx context.Context, userIDs []string) ([]Device, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	cur, err := Device{}.Collection().Find(ctx, bson.M{"user_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Device
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
