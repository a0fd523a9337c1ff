package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NotificationType is the closed set of notification categories the
// backend assigns to a record.
type NotificationType string

const (
	TypeLoginRequest       NotificationType = "login_request"
	TypeLoginApproved      NotificationType = "login_approved"
	TypeLoginRejected      NotificationType = "login_rejected"
	TypeUserRegistration   NotificationType = "user_registration"
	TypeUserRegistered     NotificationType = "user_registered"
	TypeNewOrder           NotificationType = "new_order"
	TypeOrderStatusUpdated NotificationType = "order_status_updated"
	TypeCartUpdated        NotificationType = "cart_updated"
	TypeProductAddedToCart NotificationType = "product_added_to_cart"
	TypeAdminNotification  NotificationType = "admin_notification"
	TypeSystemAlert        NotificationType = "system_alert"
	TypeGeneral            NotificationType = "general"
)

// AllNotificationTypes returns every known notification type.
func AllNotificationTypes() []NotificationType {
	return []NotificationType{
		TypeLoginRequest,
		TypeLoginApproved,
		TypeLoginRejected,
		TypeUserRegistration,
		TypeUserRegistered,
		TypeNewOrder,
		TypeOrderStatusUpdated,
		TypeCartUpdated,
		TypeProductAddedToCart,
		TypeAdminNotification,
		TypeSystemAlert,
		TypeGeneral,
	}
}

// DefaultTitle is shown when the backend sends a record without a title.
const DefaultTitle = "New notification"

// Notification is a server-issued event describing a state change
// relevant to a user or admin. The client never creates or deletes
// records; it only reads them and flips Read through the API.
type Notification struct {
	// ID is assigned by the server and grows monotonically.
	ID int64 `json:"id"`

	// Type is the category tag of the notification.
	Type NotificationType `json:"type"`

	// Title is the short headline.
	Title string `json:"title"`

	// Body is the full message text.
	Body string `json:"body"`

	// Data holds implementation-defined payload fields
	// (e.g. phoneNumber, categoryIds, action).
	Data map[string]any `json:"data,omitempty"`

	// Read indicates whether the notification was acknowledged.
	Read bool `json:"is_read"`

	// UserName is the display name of the user the record concerns.
	// Only the admin feed fills it in.
	UserName string `json:"user_name,omitempty"`

	// CreatedAt is when the server created the record.
	CreatedAt time.Time `json:"created_at"`
}

// ErrMissingID is returned when a record has no usable numeric id.
var ErrMissingID = errors.New("notification has no usable id")

// wireNotification mirrors the backend JSON loosely so that a single
// malformed field does not fail the whole poll.
type wireNotification struct {
	ID        json.RawMessage `json:"id"`
	Type      json.RawMessage `json:"type"`
	Title     json.RawMessage `json:"title"`
	Body      json.RawMessage `json:"body"`
	Message   json.RawMessage `json:"message"`
	Data      json.RawMessage `json:"data"`
	IsRead    json.RawMessage `json:"is_read"`
	UserName  json.RawMessage `json:"user_name"`
	CreatedAt json.RawMessage `json:"created_at"`
}

// UnmarshalJSON decodes a notification leniently: data may be an object
// or a JSON-encoded string, is_read may be a bool or 0/1, and text
// fields that are missing or of the wrong type fall back to defaults.
// Only a record that is not an object, or has no usable id, is an error.
func (n *Notification) UnmarshalJSON(b []byte) error {
	var w wireNotification
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("decoding notification: %w", err)
	}

	id, ok := decodeID(w.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingID, bytes.TrimSpace(w.ID))
	}

	*n = Notification{
		ID:        id,
		Type:      NotificationType(decodeText(w.Type)),
		UserName:  decodeText(w.UserName),
		Data:      decodeData(w.Data),
		Read:      decodeBool(w.IsRead),
		CreatedAt: parseTimestamp(decodeText(w.CreatedAt)),
	}

	if n.Type == "" {
		n.Type = TypeGeneral
	}

	n.Title = decodeText(w.Title)
	if strings.TrimSpace(n.Title) == "" {
		n.Title = DefaultTitle
	}

	if body, ok := textField(w.Body); ok {
		n.Body = body
	} else {
		n.Body = decodeText(w.Message)
	}
	return nil
}

// DataString returns the payload value for key as a string, or "" when
// it is absent.
func (n Notification) DataString(key string) string {
	v, ok := n.Data[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// DataStrings returns the payload value for key as a string slice.
// Scalars are wrapped; nested lists are flattened one level.
func (n Notification) DataStrings(key string) []string {
	v, ok := n.Data[key]
	if !ok || v == nil {
		return []string{}
	}
	list, ok := v.([]any)
	if !ok {
		s := n.DataString(key)
		if s == "" {
			return []string{}
		}
		return []string{s}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch t := item.(type) {
		case string:
			out = append(out, t)
		case json.Number:
			out = append(out, t.String())
		case float64:
			out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
		case nil:
		default:
			out = append(out, fmt.Sprint(t))
		}
	}
	return out
}

// EffectiveType returns the notification type, preferring the
// data.notificationType override some backend paths set.
func (n Notification) EffectiveType() NotificationType {
	if override := n.DataString("notificationType"); override != "" {
		return NotificationType(override)
	}
	return n.Type
}

// decodeID accepts a JSON number or a numeric string.
func decodeID(raw json.RawMessage) (int64, bool) {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// textField returns raw as a string when it is a JSON string.
func textField(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeText(raw json.RawMessage) string {
	s, _ := textField(raw)
	return s
}

func decodeData(raw json.RawMessage) map[string]any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	// The backend stores data as TEXT, so it can arrive double-encoded.
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		raw = []byte(s)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return m
}

func decodeBool(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "true", "1", `"1"`, `"true"`:
		return true
	default:
		return false
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
