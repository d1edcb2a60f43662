package catalog

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates idempotent indexes on the catalog's collections.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	type idx struct {
		collection string
		model      mongo.IndexModel
	}

	indexes := []idx{
		{
			collection: "datasets",
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		{
			collection: "datasets",
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "exchange", Value: 1}},
			},
		},
		{
			collection: "datasets",
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "first_ts_ns", Value: 1},
					{Key: "last_ts_ns", Value: 1},
				},
			},
		},
	}

	for _, i := range indexes {
		_, err := db.Collection(i.collection).Indexes().CreateOne(ctx, i.model)
		if err != nil {
			return fmt.Errorf("create index on %s: %w", i.collection, err)
		}
	}

	log.Println("catalog: MongoDB indexes ensured")
	return nil
}
