package model

import (
	"context"
	"time"

	mgoSrv "PPulse/service/mgo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Friendship is one directed edge (OwnerUserID follows/knows FriendUserID);
// two documents exist per mutual friendship. Status-update fan-out resolves
// its recipient set from these edges.
type Friendship struct {
	OwnerUserID  string    `bson:"owner_user_id"`
	FriendUserID string    `bson:"friend_user_id"`
	Remark       string    `bson:"remark,omitempty"`
	CreateTime   time.Time `bson:"create_time"`
}

func (Friendship) GetTableName() string {
	return "friendship"
}

func (f Friendship) Collection() *mongo.Collection {
	return mgoSrv.GetDB().Collection(f.GetTableName())
}

// FriendIDs lists the users holding an edge toward userID, i.e. the audience
// for that user's status updates.
func FriendIDs(ctx context.Context, userID string) ([]string, error) {
	cur, err := Friendship{}.Collection().Find(ctx, bson.M{"friend_user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var edges []Friendship
	if err := cur.All(ctx, &edges); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.OwnerUserID)
	}
	return out, nil
}
