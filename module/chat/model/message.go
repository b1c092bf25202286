package model

import (
	"time"

	mgoSrv "PPulse/service/mgo"

	"go.mongodb.org/mongo-driver/mongo"
)

type Message struct {
	MessageID      string `bson:"message_id"` // PK
	ConversationID string `bson:"conversation_id"`
	SenderID       string `bson:"sender_id"`

	ContentType string `bson:"content_type"` // text/image/audio/video/file
	Body        string `bson:"body,omitempty"`
	AssetKey    string `bson:"asset_key,omitempty"` // object-storage key for media content

	SendTime time.Time `bson:"send_time"`
	Status   int32     `bson:"status"` // 0=normal, 1=recalled
}

func (Message) GetTableName() string {
	return "message"
}

func (m Message) Collection() *mongo.Collection {
	return mgoSrv.GetDB().Collection(m.GetTableName())
}
