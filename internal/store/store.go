// Package store implements the document operations of the generator on
// MongoDB. Every method is a single driver call; nothing here spans
// documents transactionally.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wsic/generator/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when an update or delete matched nothing.
var ErrNotFound = errors.New("document not found")

type Mongo struct {
	db  *mongo.Database
	now func() time.Time
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db, now: time.Now}
}

func (m *Mongo) coll(name string) *mongo.Collection { return m.db.Collection(name) }

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("invalid id %q: %w", id, err)
	}
	return oid, nil
}

func insertedID(res *mongo.InsertOneResult) (string, error) {
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (m *Mongo) insert(ctx context.Context, coll string, doc any) (string, error) {
	res, err := m.coll(coll).InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", coll, err)
	}
	return insertedID(res)
}

func (m *Mongo) deleteByID(ctx context.Context, coll, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := m.coll(coll).DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", coll, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete %s %s: %w", coll, id, ErrNotFound)
	}
	return nil
}

func (m *Mongo) CreateTopic(ctx context.Context, t *models.TopicModel) (string, error) {
	return m.insert(ctx, models.TopicModel{}.CollectionName(), t)
}

func (m *Mongo) PublishTopic(ctx context.Context, topicID string) error {
	oid, err := objectID(topicID)
	if err != nil {
		return err
	}
	now := m.now().UnixMilli()
	res, err := m.coll(models.TopicModel{}.CollectionName()).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"isPublished": true, "publishedAt": now, "updatedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("publish topic: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("publish topic %s: %w", topicID, ErrNotFound)
	}
	return nil
}

func (m *Mongo) DeleteTopic(ctx context.Context, topicID string) error {
	return m.deleteByID(ctx, models.TopicModel{}.CollectionName(), topicID)
}

func (m *Mongo) CreateEmbedding(ctx context.Context, e *models.EmbeddingModel) (string, error) {
	return m.insert(ctx, models.EmbeddingModel{}.CollectionName(), e)
}

func (m *Mongo) DeleteEmbedding(ctx context.Context, id string) error {
	return m.deleteByID(ctx, models.EmbeddingModel{}.CollectionName(), id)
}

func (m *Mongo) CreateBlock(ctx context.Context, b *models.BlockModel) (string, error) {
	return m.insert(ctx, models.BlockModel{}.CollectionName(), b)
}

func (m *Mongo) DeleteBlock(ctx context.Context, id string) error {
	return m.deleteByID(ctx, models.BlockModel{}.CollectionName(), id)
}

func (m *Mongo) ListBlocksByTopic(ctx context.Context, topicID string) ([]models.BlockModel, error) {
	var out []models.BlockModel
	err := m.find(ctx, models.BlockModel{}.CollectionName(), bson.M{"topicId": topicID},
		options.Find().SetSort(bson.D{{Key: "order", Value: 1}}), &out)
	return out, err
}

func (m *Mongo) ListEmbeddingsByTopic(ctx context.Context, topicID string) ([]models.EmbeddingModel, error) {
	var out []models.EmbeddingModel
	err := m.find(ctx, models.EmbeddingModel{}.CollectionName(), bson.M{"topicId": topicID},
		options.Find().SetProjection(bson.M{"embedding": 0}), &out)
	return out, err
}

func (m *Mongo) ListCategories(ctx context.Context) ([]models.CategoryModel, error) {
	var out []models.CategoryModel
	err := m.find(ctx, models.CategoryModel{}.CollectionName(), bson.M{}, nil, &out)
	return out, err
}

func (m *Mongo) ListNotificationTypes(ctx context.Context) ([]models.NotificationTypeModel, error) {
	var out []models.NotificationTypeModel
	err := m.find(ctx, models.NotificationTypeModel{}.CollectionName(), bson.M{}, nil, &out)
	return out, err
}

func (m *Mongo) CreateNotification(ctx context.Context, n *models.NotificationModel) (string, error) {
	return m.insert(ctx, models.NotificationModel{}.CollectionName(), n)
}

func (m *Mongo) find(ctx context.Context, coll string, filter bson.M, opts *options.FindOptions, out any) error {
	var findOpts []*options.FindOptions
	if opts != nil {
		findOpts = append(findOpts, opts)
	}
	cursor, err := m.coll(coll).Find(ctx, filter, findOpts...)
	if err != nil {
		return fmt.Errorf("find in %s: %w", coll, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", coll, err)
	}
	return nil
}
