package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/amrut/notifydesk/internal/model"
)

// NotificationsResponse is the response from GET /notifications/user/{id}.
// Records are decoded one by one so a malformed record is skipped
// instead of failing the list.
type NotificationsResponse struct {
	Notifications []json.RawMessage `json:"notifications"`
}

// Decode returns the records that decode, in server order. The others
// are logged and dropped.
func (r NotificationsResponse) Decode() []model.Notification {
	out := make([]model.Notification, 0, len(r.Notifications))
	for i, raw := range r.Notifications {
		var n model.Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			log.Printf("[API] skipping notification %d of %d: %v", i+1, len(r.Notifications), err)
			continue
		}
		out = append(out, n)
	}
	return out
}

// UnreadCountResponse is the response from GET /notifications/user/{id}/unread.
type UnreadCountResponse struct {
	UnreadCount *json.Number `json:"unreadCount"`
	Count       *json.Number `json:"count"`
}

// Value returns the unread count, tolerating the older "count" key and
// a missing field (treated as zero).
func (r UnreadCountResponse) Value() (int, error) {
	n := r.UnreadCount
	if n == nil {
		n = r.Count
	}
	if n == nil {
		return 0, nil
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("parsing unread count %q: %w", n.String(), err)
	}
	if v < 0 {
		v = 0
	}
	return int(v), nil
}

// GetUserNotifications fetches the full notification list for a user.
// The backend returns newest first.
func (c *Client) GetUserNotifications(
	ctx context.Context,
	creds model.Credentials,
) ([]model.Notification, error) {
	if !creds.Valid() {
		return nil, ErrMissingCredentials
	}

	var resp NotificationsResponse
	path := "/notifications/user/" + url.PathEscape(creds.UserID)
	if err := c.get(ctx, path, creds.Token, &resp); err != nil {
		return nil, fmt.Errorf("fetching notifications: %w", err)
	}
	return resp.Decode(), nil
}

// GetUnreadCount fetches the number of unread notifications for a user.
func (c *Client) GetUnreadCount(
	ctx context.Context,
	creds model.Credentials,
) (int, error) {
	if !creds.Valid() {
		return 0, ErrMissingCredentials
	}

	var resp UnreadCountResponse
	path := "/notifications/user/" + url.PathEscape(creds.UserID) + "/unread"
	if err := c.get(ctx, path, creds.Token, &resp); err != nil {
		return 0, fmt.Errorf("fetching unread count: %w", err)
	}
	return resp.Value()
}

// MarkNotificationRead acknowledges a single notification.
func (c *Client) MarkNotificationRead(
	ctx context.Context,
	token string,
	notificationID int64,
) error {
	if token == "" {
		return ErrMissingCredentials
	}

	path := "/notifications/" + strconv.FormatInt(notificationID, 10) + "/read"
	if err := c.patch(ctx, path, token, nil); err != nil {
		return fmt.Errorf("marking notification %d read: %w", notificationID, err)
	}
	return nil
}

// MarkAllNotificationsRead acknowledges every notification of a user.
func (c *Client) MarkAllNotificationsRead(
	ctx context.Context,
	creds model.Credentials,
) error {
	if !creds.Valid() {
		return ErrMissingCredentials
	}

	path := "/notifications/user/" + url.PathEscape(creds.UserID) + "/read-all"
	if err := c.patch(ctx, path, creds.Token, nil); err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}

// ValidateSession asks the backend whether token is still accepted.
func (c *Client) ValidateSession(ctx context.Context, token string) error {
	if token == "" {
		return ErrMissingCredentials
	}
	if err := c.get(ctx, "/users/validate-session", token, nil); err != nil {
		return fmt.Errorf("validating session: %w", err)
	}
	return nil
}
