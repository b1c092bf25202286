package database

import "go.mongodb.org/mongo-driver/mongo"

// Table is implemented by every durable-store model; the model packages
// assert it at compile time so a renamed collection cannot drift silently.
type Table interface {
	GetTableName() string
	Collection() *mongo.Collection
}
