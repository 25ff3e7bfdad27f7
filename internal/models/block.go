package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Block types.
const (
	BlockTypeInformation = "information"
	BlockTypeActivity    = "activity"
)

// BlockModel is one ordered content unit of a topic.
type BlockModel struct {
	ID        primitive.ObjectID `json:"_id"       bson:"_id,omitempty"`
	TopicID   string             `json:"topicId"   bson:"topicId"`
	Type      string             `json:"type"      bson:"type"`
	Content   BlockContent       `json:"content"   bson:"content"`
	Order     int                `json:"order"     bson:"order"`
	CreatedAt int64              `json:"createdAt" bson:"createdAt"`
}

// BlockContent is either a "text" payload or an "exercise" payload.
type BlockContent struct {
	Type string         `json:"type" bson:"type"`
	Data map[string]any `json:"data" bson:"data"`
}

func (BlockModel) CollectionName() string { return "blocks" }
