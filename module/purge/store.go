package purge

import (
	"context"

	"PPulse/module/chat/model"
	mgoSrv "PPulse/service/mgo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on the durable store, addressing documents by
// their _id so the same delete path works for every collection.
type MongoStore struct{}

func coll(name string) *mongo.Collection {
	return mgoSrv.GetDB().Collection(name)
}

func filterFor(conds []Match) bson.M {
	f := bson.M{}
	for _, c := range conds {
		// equality and array membership share the same mongo encoding
		f[c.Field] = c.Value
	}
	return f
}

func (MongoStore) ConversationsWith(ctx context.Context, userID string) ([]ConvRef, error) {
	cur, err := coll(model.Conversation{}.GetTableName()).Find(ctx,
		bson.M{"participants": userID},
		options.Find().SetProjection(bson.M{"conversation_id": 1, "participants": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []ConvRef
	for cur.Next(ctx) {
		var doc struct {
			ConversationID string   `bson:"conversation_id"`
			Participants   []string `bson:"participants"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, ConvRef{ID: doc.ConversationID, ParticipantCount: len(doc.Participants)})
	}
	return out, cur.Err()
}

func (MongoStore) IDs(ctx context.Context, collName string, conds ...Match) ([]string, error) {
	cur, err := coll(collName).Find(ctx, filterFor(conds),
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.ID.Hex())
	}
	return out, cur.Err()
}

func (MongoStore) AssetKeys(ctx context.Context, collName string, conds ...Match) ([]string, error) {
	f := filterFor(conds)
	f["asset_key"] = bson.M{"$nin": bson.A{"", nil}}
	cur, err := coll(collName).Find(ctx, f,
		options.Find().SetProjection(bson.M{"asset_key": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var doc struct {
			AssetKey string `bson:"asset_key"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.AssetKey)
	}
	return out, cur.Err()
}

func (MongoStore) Delete(ctx context.Context, collName string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	oids := make(bson.A, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			// non-ObjectID _id, match it raw
			oids = append(oids, id)
			continue
		}
		oids = append(oids, oid)
	}
	res, err := coll(collName).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if res == nil {
		return 0, err
	}
	return res.DeletedCount, err
}

func (MongoStore) PullParticipant(ctx context.Context, convID, userID string) (int, bool, error) {
	var doc struct {
		Participants []string `bson:"participants"`
	}
	err := coll(model.Conversation{}.GetTableName()).FindOneAndUpdate(ctx,
		bson.M{"conversation_id": convID},
		bson.M{"$pull": bson.M{"participants": userID}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"participants": 1}),
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return len(doc.Participants), true, nil
}
