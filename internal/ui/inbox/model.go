package inbox

import (
	"context"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amrut/notifydesk/internal/model"
	"github.com/amrut/notifydesk/internal/store"
	"github.com/amrut/notifydesk/internal/theme"
)

// LoadedMsg is sent when the inbox has been read from the local cache.
type LoadedMsg struct {
	Notifications []model.Notification
	Unread        int
	Err           error
}

// Model is the notification inbox view.
type Model struct {
	list       list.Model
	store      store.Store
	unreadOnly bool
	unread     int
	err        error
	width      int
	height     int
}

// New creates an inbox backed by the local cache.
func New(s store.Store, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height-2)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	// Quitting is owned by the root model.
	l.DisableQuitKeybindings()
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		store:  s,
		width:  width,
		height: height,
	}
}

// Load returns a command that reads userID's notifications from the
// cache with the current filter.
func (m Model) Load(userID string) tea.Cmd {
	s := m.store
	filter := store.NotificationFilter{UserID: userID, UnreadOnly: m.unreadOnly}
	return func() tea.Msg {
		if userID == "" {
			return LoadedMsg{}
		}
		ctx := context.Background()
		ns, err := s.GetNotifications(ctx, filter)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		unread, err := s.GetUnreadCount(ctx, userID)
		if err != nil {
			return LoadedMsg{Err: err}
		}
		return LoadedMsg{Notifications: ns, Unread: unread}
	}
}

// Update handles messages for the inbox view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		m.unread = msg.Unread
		items := make([]list.Item, len(msg.Notifications))
		for i, n := range msg.Notifications {
			items[i] = NotificationItem{Notification: n}
		}
		return m, m.list.SetItems(items)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// SelectedNotification returns the focused notification.
func (m Model) SelectedNotification() (model.Notification, bool) {
	item, ok := m.list.SelectedItem().(NotificationItem)
	if !ok {
		return model.Notification{}, false
	}
	return item.Notification, true
}

// ToggleUnreadOnly flips the unread filter. The caller reloads.
func (m *Model) ToggleUnreadOnly() {
	m.unreadOnly = !m.unreadOnly
	if m.unreadOnly {
		m.list.Title = "Unread notifications"
	} else {
		m.list.Title = "Notifications"
	}
}

// UnreadOnly reports whether only unread notifications are listed.
func (m Model) UnreadOnly() bool {
	return m.unreadOnly
}

// Unread returns the cached unread count from the last load.
func (m Model) Unread() int {
	return m.unread
}

// Len returns the number of listed notifications.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Reset clears the list, e.g. after logout.
func (m *Model) Reset() tea.Cmd {
	m.unread = 0
	m.err = nil
	return m.list.SetItems(nil)
}

// View renders the inbox.
func (m Model) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(theme.ErrorStyle.Render("Could not read the notification cache:\n" + m.err.Error()))
	}
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// renderEmptyState shows guidance text when nothing is cached.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.unreadOnly {
		return style.Render("No unread notifications.\nPress u to show all.")
	}
	return style.Render("No notifications yet.\n\nNew ones appear here as they arrive.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-2)
}
