package model

import (
	"time"

	mgoSrv "PPulse/service/mgo"

	"go.mongodb.org/mongo-driver/mongo"
)

// FriendRequest is one pending request (FromUserID -> ToUserID). Creation is
// admission-controlled; the purge module removes requests in both directions
// when either party is deleted.
type FriendRequest struct {
	RequestID  string `bson:"request_id"` // globally unique, for idempotent handling
	FromUserID string `bson:"from_user_id"`
	ToUserID   string `bson:"to_user_id"`

	HandleResult int32  `bson:"handle_result"` // 0=pending, 1=accepted, 2=rejected, 3=ignored
	ReqMsg       string `bson:"req_msg"`

	CreateTime time.Time `bson:"create_time"`
	HandleTime time.Time `bson:"handle_time,omitempty"`
}

func (FriendRequest) GetTableName() string {
	return "friend_request"
}

func (f FriendRequest) Collection() *mongo.Collection {
	return mgoSrv.GetDB().Collection(f.GetTableName())
}
