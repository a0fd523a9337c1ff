package inbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amrut/notifydesk/internal/model"
	"github.com/amrut/notifydesk/internal/theme"
)

// NotificationItem wraps a model.Notification so it can be used in a
// bubbles/list.
type NotificationItem struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i NotificationItem) FilterValue() string { return i.Notification.Title }

// Title returns the notification title for the list.
func (i NotificationItem) Title() string { return i.Notification.Title }

// Description returns a short summary line for the list.
func (i NotificationItem) Description() string {
	parts := []string{
		string(i.Notification.Type),
		relativeTime(i.Notification.CreatedAt),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for inbox rows.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused for now).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single inbox row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(NotificationItem)
	if !ok {
		return
	}
	n := ni.Notification

	marker := "●"
	if n.Read {
		marker = " "
	}

	typ := string(n.EffectiveType())
	label := theme.TypeLabelStyle(typ).Render(typeLabel(n.EffectiveType()))

	title := n.Title
	if title == "" {
		title = model.DefaultTitle
	}
	if n.UserName != "" {
		title += " (" + n.UserName + ")"
	}

	timeStr := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(n.CreatedAt))

	line := fmt.Sprintf("%s %s %s  %s", marker, label, title, timeStr)

	switch {
	case index == m.Index():
		line = theme.SelectedItemStyle.Render(line)
	case n.Read:
		line = theme.ReadItemStyle.Render(line)
	default:
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// typeLabel returns a short fixed-width tag for a notification type.
func typeLabel(t model.NotificationType) string {
	switch t {
	case model.TypeLoginRequest:
		return "LOGIN?"
	case model.TypeLoginApproved:
		return "LOGIN✓"
	case model.TypeLoginRejected:
		return "LOGIN✗"
	case model.TypeUserRegistration, model.TypeUserRegistered:
		return "USER"
	case model.TypeNewOrder, model.TypeOrderStatusUpdated:
		return "ORDER"
	case model.TypeCartUpdated, model.TypeProductAddedToCart:
		return "CART"
	case model.TypeSystemAlert:
		return "ALERT"
	case model.TypeAdminNotification:
		return "ADMIN"
	default:
		return "INFO"
	}
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}
