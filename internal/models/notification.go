package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Notification type keys looked up at write time.
const (
	NotificationTopicGenerated = "topic_generated"
	NotificationError          = "error"
	NotificationBadTopic       = "bad_topic"
)

// NotificationTypeModel is an entry of the live notification type registry.
type NotificationTypeModel struct {
	ID          primitive.ObjectID `json:"_id"         bson:"_id,omitempty"`
	Key         string             `json:"key"         bson:"key"`
	Name        string             `json:"name"        bson:"name"`
	Description string             `json:"description" bson:"description"`
	IsActive    bool               `json:"isActive"    bson:"isActive"`
}

func (NotificationTypeModel) CollectionName() string { return "notificationTypes" }

type NotificationModel struct {
	ID                  primitive.ObjectID `json:"_id"                 bson:"_id,omitempty"`
	UserID              string             `json:"userId"              bson:"userId"`
	NotificationTypeKey string             `json:"notificationTypeKey" bson:"notificationTypeKey"`
	Title               string             `json:"title"               bson:"title"`
	Message             string             `json:"message"             bson:"message"`
	Data                map[string]any     `json:"data,omitempty"      bson:"data,omitempty"`
	IsRead              bool               `json:"isRead"              bson:"isRead"`
	CreatedAt           int64              `json:"createdAt"           bson:"createdAt"`
}

func (NotificationModel) CollectionName() string { return "notifications" }
