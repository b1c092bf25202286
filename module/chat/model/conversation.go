package model

import (
	"context"
	"time"

	mgoSrv "PPulse/service/mgo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Conversation is the container an event fans out over. Participants is the
// roster snapshot the whole fan-out pass reuses; BotIDs are automated
// participants handled by the reply collaborator, never pushed to.
type Conversation struct {
	ConversationID string `bson:"conversation_id"` // PK
	Type           int32  `bson:"type"`            // 1=direct, 2=group

	Participants []string `bson:"participants"`
	BotIDs       []string `bson:"bot_ids,omitempty"`

	CreateTime time.Time `bson:"create_time"`
	UpdateTime time.Time `bson:"update_time"`
}

func (Conversation) GetTableName() string {
	return "conversation"
}

func (c Conversation) Collection() *mongo.Collection {
	return mgoSrv.GetDB().Collection(c.GetTableName())
}

// GetConversation reads one container; nil when absent.
func GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	var conv Conversation
	err := conv.Collection().FindOne(ctx, bson.M{"conversation_id": conversationID}).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
