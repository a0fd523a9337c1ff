package store

import (
	"context"
	"time"

	"github.com/amrut/notifydesk/internal/model"
)

// NotificationFilter controls filtering and pagination for notification
// queries. Results are always ordered newest first.
type NotificationFilter struct {
	UserID     string                   // required
	UnreadOnly bool                     // only records with read = 0
	Types      []model.NotificationType // any of these types (OR logic)
	Query      *string                  // search title + body
	Limit      int
	Offset     int
}

// Store is the local cache of the user's notification feed.
type Store interface {
	UpsertNotifications(ctx context.Context, userID string, ns []model.Notification) error
	GetNotifications(ctx context.Context, filter NotificationFilter) ([]model.Notification, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID string, id int64) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	PruneOlderThan(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
