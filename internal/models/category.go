package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// CategoryModel is owned by the content platform and only read here.
type CategoryModel struct {
	ID          primitive.ObjectID `json:"_id"         bson:"_id,omitempty"`
	Name        string             `json:"name"        bson:"name"`
	Slug        string             `json:"slug"        bson:"slug"`
	Description string             `json:"description" bson:"description"`
}

func (CategoryModel) CollectionName() string { return "categories" }
