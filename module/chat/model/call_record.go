package model

import (
	"time"

	mgoSrv "PPulse/service/mgo"

	"go.mongodb.org/mongo-driver/mongo"
)

type CallRecord struct {
	CallID         string `bson:"call_id"` // PK
	ConversationID string `bson:"conversation_id"`
	CallerID       string `bson:"caller_id"`
	CalleeID       string `bson:"callee_id"`

	StartTime time.Time `bson:"start_time"`
	EndTime   time.Time `bson:"end_time,omitempty"`
	Status    int32     `bson:"status"` // 0=ringing, 1=answered, 2=missed, 3=declined
}

func (CallRecord) GetTableName() string {
	return "call_record"
}

func (c CallRecord) Collection() *mongo.Collection {
	return mgoSrv.GetDB().Collection(c.GetTableName())
}
