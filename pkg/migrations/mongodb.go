package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ratingcore/internal/constants"
)

// EnsureMongoCollection creates the indexes used by validity cache loads.
// The collection itself is created on first insert.
func EnsureMongoCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection(constants.MongoValidityCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "cache", Value: 1}, {Key: "seq", Value: 1}},
			Options: options.Index().SetName("idx_validity_segments_cache_seq"),
		},
		{
			Keys:    bson.D{{Key: "cache", Value: 1}, {Key: "version", Value: 1}, {Key: "seq", Value: 1}},
			Options: options.Index().SetName("idx_validity_segments_cache_version_seq"),
		},
		{
			Keys: bson.D{
				{Key: "cache", Value: 1},
				{Key: "group", Value: 1},
				{Key: "resource_id", Value: 1},
				{Key: "valid_from", Value: 1},
			},
			Options: options.Index().SetName("idx_validity_segments_bucket_from"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
