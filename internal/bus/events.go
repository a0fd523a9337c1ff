package bus

import (
	"time"

	"github.com/amrut/notifydesk/internal/model"
)

// Process-wide topic keys.
const (
	TopicShowToast           = "show-toast"
	TopicNotificationUpdated = "notification-updated"
	TopicLoginRequest        = "login-request"
	TopicNewNotification     = "new-notification"
	TopicSessionExpired      = "session-expired"
)

// Data stream keys served by the realtime watcher.
const (
	DataCategories = "categories"
	DataProducts   = "products"
	DataOrders     = "orders"
	DataSliders    = "sliders"
)

// LoginRequestEvent is published when a business user asks an admin to
// approve their login.
type LoginRequestEvent struct {
	NotificationID int64
	PhoneNumber    string
	CategoryIDs    []string
}

// SessionEvent is published when the session gate loses authentication
// outside an explicit logout.
type SessionEvent struct {
	Reason string
	At     time.Time
}

// DataEvent carries a refreshed data stream payload.
type DataEvent struct {
	DataType   string
	CategoryID string
	Payload    any
	Hash       uint64
	FetchedAt  time.Time
}

// Events bundles the typed topics shared across the application.
type Events struct {
	ShowToast           *Bus[model.Notification]
	NotificationUpdated *Bus[struct{}]
	LoginRequest        *Bus[LoginRequestEvent]
	NewNotification     *Bus[model.Notification]
	SessionExpired      *Bus[SessionEvent]
	Data                *Bus[DataEvent]
}

// NewEvents creates the application's topic set.
func NewEvents() *Events {
	return &Events{
		ShowToast:           New[model.Notification](TopicShowToast),
		NotificationUpdated: New[struct{}](TopicNotificationUpdated),
		LoginRequest:        New[LoginRequestEvent](TopicLoginRequest),
		NewNotification:     New[model.Notification](TopicNewNotification),
		SessionExpired:      New[SessionEvent](TopicSessionExpired),
		Data:                New[DataEvent]("data"),
	}
}

// LoginRequestFrom extracts the login-request payload from a notification.
func LoginRequestFrom(n model.Notification) LoginRequestEvent {
	phone := n.DataString("phoneNumber")
	if phone == "" {
		phone = n.DataString("userName")
	}
	if phone == "" {
		phone = n.UserName
	}
	return LoginRequestEvent{
		NotificationID: n.ID,
		PhoneNumber:    phone,
		CategoryIDs:    n.DataStrings("categoryIds"),
	}
}

// IsLoginRequest reports whether n should also raise a login-request event.
func IsLoginRequest(n model.Notification) bool {
	return n.Type == model.TypeLoginRequest || n.EffectiveType() == model.TypeLoginRequest
}

// Dispose drops every subscription on every topic.
func (e *Events) Dispose() {
	e.ShowToast.Clear()
	e.NotificationUpdated.Clear()
	e.LoginRequest.Clear()
	e.NewNotification.Clear()
	e.SessionExpired.Clear()
	e.Data.Clear()
}
