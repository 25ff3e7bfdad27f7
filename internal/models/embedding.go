package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// EmbeddingModel holds the search vector of a topic's brief research text.
type EmbeddingModel struct {
	ID          primitive.ObjectID `json:"_id"                  bson:"_id,omitempty"`
	TopicID     string             `json:"topicId"              bson:"topicId"`
	Embedding   []float64          `json:"embedding"            bson:"embedding"`
	ContentType string             `json:"contentType"          bson:"contentType"`
	Difficulty  string             `json:"difficulty"           bson:"difficulty"`
	CategoryID  string             `json:"categoryId,omitempty" bson:"categoryId,omitempty"`
	CreatedAt   int64              `json:"createdAt"            bson:"createdAt"`
}

func (EmbeddingModel) CollectionName() string { return "embeddings" }
