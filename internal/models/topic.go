package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Difficulty levels accepted for a topic.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// TopicModel is a generated learning module. Blocks and the embedding refer
// to it by hex id.
type TopicModel struct {
	ID                primitive.ObjectID `json:"_id"                   bson:"_id,omitempty"`
	Title             string             `json:"title"                 bson:"title"`
	Description       string             `json:"description"           bson:"description"`
	Slug              string             `json:"slug"                  bson:"slug"`
	Difficulty        string             `json:"difficulty"            bson:"difficulty"`
	EstimatedReadTime int                `json:"estimatedReadTime"     bson:"estimatedReadTime"`
	IsAIGenerated     bool               `json:"isAIGenerated"         bson:"isAIGenerated"`
	IsPublished       bool               `json:"isPublished"           bson:"isPublished"`
	GenerationPrompt  string             `json:"generationPrompt"      bson:"generationPrompt"`
	Sources           []string           `json:"sources,omitempty"     bson:"sources,omitempty"`
	ImageURL          string             `json:"imageUrl,omitempty"    bson:"imageUrl,omitempty"`
	Metadata          TopicMetadata      `json:"metadata"              bson:"metadata"`
	CategoryID        string             `json:"categoryId,omitempty"  bson:"categoryId,omitempty"`
	TagIDs            []string           `json:"tagIds,omitempty"      bson:"tagIds,omitempty"`
	CreatedBy         string             `json:"createdBy,omitempty"   bson:"createdBy,omitempty"`
	CreatedAt         int64              `json:"createdAt"             bson:"createdAt"`
	UpdatedAt         int64              `json:"updatedAt"             bson:"updatedAt"`
	PublishedAt       int64              `json:"publishedAt,omitempty" bson:"publishedAt,omitempty"`
}

type TopicMetadata struct {
	WordCount     int    `json:"wordCount"     bson:"wordCount"`
	ReadingLevel  string `json:"readingLevel"  bson:"readingLevel"`
	EstimatedTime int    `json:"estimatedTime" bson:"estimatedTime"`
	ExerciseCount int    `json:"exerciseCount" bson:"exerciseCount"`
}

func (TopicModel) CollectionName() string { return "topics" }
