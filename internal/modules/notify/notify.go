// Package notify writes user notifications keyed by the live notification
// type registry and fans them out on Redis.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wsic/generator/internal/models"
	"go.uber.org/zap"
)

// ErrUnknownType is returned by Send when the registry has no such key.
var ErrUnknownType = errors.New("notification type not found")

// Registry is the part of the document store notifications need.
type Registry interface {
	ListNotificationTypes(ctx context.Context) ([]models.NotificationTypeModel, error)
	CreateNotification(ctx context.Context, n *models.NotificationModel) (string, error)
}

// Publisher fans a stored notification out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// ChannelPrefix is followed by the user id.
const ChannelPrefix = "wsic:notifications:"

type Notifier struct {
	registry     Registry
	publisher    Publisher
	fallbackUser string
	logger       *zap.Logger
	now          func() time.Time
}

// New builds a Notifier. publisher may be nil.
func New(registry Registry, publisher Publisher, fallbackUser string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallbackUser == "" {
		fallbackUser = "system"
	}
	return &Notifier{
		registry:     registry,
		publisher:    publisher,
		fallbackUser: fallbackUser,
		logger:       logger.Named("Notifier"),
		now:          time.Now,
	}
}

// FallbackUser is the recipient used when the requester is unknown.
func (n *Notifier) FallbackUser() string { return n.fallbackUser }

// ResolveType looks key up in the registry on every call. It returns nil
// without error when the key is not registered.
func (n *Notifier) ResolveType(ctx context.Context, key string) (*models.NotificationTypeModel, error) {
	types, err := n.registry.ListNotificationTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notification types: %w", err)
	}
	for i := range types {
		if types[i].Key == key {
			return &types[i], nil
		}
	}
	return nil, nil
}

// Deliver stores notification under typ and publishes it. Only the store
// write can fail the call.
func (n *Notifier) Deliver(ctx context.Context, typ *models.NotificationTypeModel, notification *models.NotificationModel) (string, error) {
	if strings.TrimSpace(notification.UserID) == "" {
		notification.UserID = n.fallbackUser
	}
	notification.NotificationTypeKey = typ.ID.Hex()
	notification.CreatedAt = n.now().UnixMilli()

	id, err := n.registry.CreateNotification(ctx, notification)
	if err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}
	n.publish(ctx, id, typ.Key, notification)
	return id, nil
}

// Send resolves key and delivers notification in one step.
func (n *Notifier) Send(ctx context.Context, key string, notification *models.NotificationModel) (string, error) {
	typ, err := n.ResolveType(ctx, key)
	if err != nil {
		return "", err
	}
	if typ == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, key)
	}
	return n.Deliver(ctx, typ, notification)
}

type published struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	At      int64          `json:"createdAt"`
}

func (n *Notifier) publish(ctx context.Context, id, key string, notification *models.NotificationModel) {
	if n.publisher == nil {
		return
	}
	payload, err := json.Marshal(published{
		ID:      id,
		Type:    key,
		Title:   notification.Title,
		Message: notification.Message,
		Data:    notification.Data,
		At:      notification.CreatedAt,
	})
	if err != nil {
		n.logger.Warn("encode notification event failed", zap.Error(err))
		return
	}
	if err := n.publisher.Publish(ctx, ChannelPrefix+notification.UserID, payload); err != nil {
		n.logger.Warn("publish notification failed",
			zap.String("user_id", notification.UserID),
			zap.String("notification_id", id),
			zap.Error(err),
		)
	}
}
