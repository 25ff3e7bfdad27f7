package database

import (
	"context"
	"fmt"
	"time"

	"github.com/wsic/generator/internal/config"
	"github.com/wsic/generator/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo dials the document store, checks it with a ping and returns
// the configured database.
func ConnectMongo(cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	if cfg.URI == "" {
		return nil, nil, config.ErrMissingMongoURI
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	clientOptions := options.Client().ApplyURI(cfg.URI).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetConnectTimeout(5 * time.Second).
		SetSocketTimeout(timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}

// EnsureIndexes creates the lookup indexes used by the compensation sweep and
// the registry lookups.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		models.BlockModel{}.CollectionName(): {
			{Keys: bson.D{{Key: "topicId", Value: 1}, {Key: "order", Value: 1}}},
		},
		models.EmbeddingModel{}.CollectionName(): {
			{Keys: bson.D{{Key: "topicId", Value: 1}}},
		},
		models.TopicModel{}.CollectionName(): {
			{Keys: bson.D{{Key: "slug", Value: 1}}},
		},
		models.NotificationModel{}.CollectionName(): {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		models.NotificationTypeModel{}.CollectionName(): {
			{Keys: bson.D{{Key: "key", Value: 1}}},
		},
	}
	for coll, indexes := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
