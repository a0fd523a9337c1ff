package app

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amrut/notifydesk/internal/model"
	"github.com/amrut/notifydesk/internal/ui/command"
)

type loginResultMsg struct {
	userID string
	err    error
}

type logoutResultMsg struct {
	err error
}

// actionResultMsg reports the outcome of an inbox action for the status bar.
type actionResultMsg struct {
	status string
	err    error
}

// userID returns the signed-in user, or "" when signed out.
func (m Model) userID() string {
	creds, ok := m.deps.Session.Credentials()
	if !ok {
		return ""
	}
	return creds.UserID
}

// loadInbox reloads the inbox for the signed-in user.
func (m Model) loadInbox() tea.Cmd {
	return m.inbox.Load(m.userID())
}

func (m Model) submitLogin(creds model.Credentials) tea.Cmd {
	s := m.deps.Session
	return func() tea.Msg {
		err := s.OnLogin(context.Background(), creds)
		return loginResultMsg{userID: creds.UserID, err: err}
	}
}

func (m Model) logout() tea.Cmd {
	s := m.deps.Session
	return func() tea.Msg {
		return logoutResultMsg{err: s.OnLogout(context.Background())}
	}
}

// markRead acknowledges id on the backend and then in the local cache.
func (m Model) markRead(id int64) tea.Cmd {
	ack := m.deps.Presenter
	st := m.deps.Store
	userID := m.userID()
	return func() tea.Msg {
		ctx := context.Background()
		if ack != nil {
			if err := ack.Acknowledge(ctx, id); err != nil {
				return actionResultMsg{err: err}
			}
		}
		if err := st.MarkNotificationRead(ctx, userID, id); err != nil {
			return actionResultMsg{err: fmt.Errorf("updating cache: %w", err)}
		}
		return actionResultMsg{status: "Marked as read"}
	}
}

// markAllRead clears every unread notification of the signed-in user.
func (m Model) markAllRead() tea.Cmd {
	backend := m.deps.Backend
	st := m.deps.Store
	creds, ok := m.deps.Session.Credentials()
	bridge := m.deps.Bridge
	return func() tea.Msg {
		if !ok {
			return actionResultMsg{err: fmt.Errorf("not signed in")}
		}
		ctx := context.Background()
		if backend != nil {
			if err := backend.MarkAllNotificationsRead(ctx, creds); err != nil {
				return actionResultMsg{err: err}
			}
		}
		n, err := st.MarkAllRead(ctx, creds.UserID)
		if err != nil {
			return actionResultMsg{err: fmt.Errorf("updating cache: %w", err)}
		}
		if bridge != nil {
			bridge.PublishUpdated()
		}
		return actionResultMsg{status: fmt.Sprintf("Marked %d notifications as read", n)}
	}
}

// setSound switches the cue and reports it in the status bar.
func (m *Model) setSound(on bool) {
	m.deps.Sound.SetEnabled(on)
	if on {
		m.statusMsg = "Sound on"
	} else {
		m.statusMsg = "Sound off"
	}
}

// executeCommand runs a command from the palette.
func (m *Model) executeCommand(msg command.CommandMsg) tea.Cmd {
	switch msg.Name {
	case command.Refresh:
		if m.deps.Poller != nil {
			m.deps.Poller.Refresh()
		}
		m.statusMsg = "Checking for notifications..."
		return m.loadInbox()
	case command.ReadAll:
		return m.markAllRead()
	case command.Unread:
		m.inbox.ToggleUnreadOnly()
		return m.loadInbox()
	case command.Sound:
		if m.deps.Sound == nil {
			return nil
		}
		switch msg.Arg {
		case "on":
			m.setSound(true)
		case "off":
			m.setSound(false)
		default:
			m.setSound(!m.deps.Sound.Enabled())
		}
		return nil
	case command.Volume:
		if m.deps.Sound == nil {
			return nil
		}
		m.deps.Sound.SetVolume(msg.Volume)
		m.statusMsg = fmt.Sprintf("Volume %d%%", int(m.deps.Sound.Volume()*100+0.5))
		return nil
	case command.Logout:
		return m.logout()
	case command.Quit:
		return tea.Quit
	default:
		return nil
	}
}
