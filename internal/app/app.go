package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amrut/notifydesk/internal/keys"
	"github.com/amrut/notifydesk/internal/model"
	"github.com/amrut/notifydesk/internal/store"
	appsync "github.com/amrut/notifydesk/internal/sync"
	"github.com/amrut/notifydesk/internal/ui"
	"github.com/amrut/notifydesk/internal/ui/command"
	"github.com/amrut/notifydesk/internal/ui/detail"
	helpview "github.com/amrut/notifydesk/internal/ui/help"
	"github.com/amrut/notifydesk/internal/ui/inbox"
	"github.com/amrut/notifydesk/internal/ui/login"
	"github.com/amrut/notifydesk/internal/ui/toast"
)

// statusRefresh is how often the header re-reads the poller status.
const statusRefresh = time.Second

// Session is the part of the session gate the UI drives.
type Session interface {
	OnLogin(ctx context.Context, creds model.Credentials) error
	OnLogout(ctx context.Context) error
	Authenticated() bool
	Credentials() (model.Credentials, bool)
}

// Poller is the part of the notification poller the UI drives.
type Poller interface {
	Refresh()
	Status() appsync.Status
}

// Backend performs account-wide notification updates.
type Backend interface {
	MarkAllNotificationsRead(ctx context.Context, creds model.Credentials) error
}

// Acknowledger marks a single notification read on the backend.
type Acknowledger interface {
	Acknowledge(ctx context.Context, id int64) error
}

// SoundControl switches notification sounds and sets their volume.
type SoundControl interface {
	Enabled() bool
	SetEnabled(bool)
	Volume() float64
	SetVolume(float64)
}

// Deps are the services the root model talks to.
type Deps struct {
	Session   Session
	Poller    Poller
	Backend   Backend
	Presenter Acknowledger
	Sound     SoundControl
	Store     store.Store
	Bridge    *Bridge
	Profile   string
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewLogin ViewState = iota
	ViewInbox
	ViewDetail
	ViewCommand
	ViewHelp
)

type statusTickMsg struct{}

// Model is the root Bubble Tea model that routes between the login form,
// the inbox and the help overlay, and stacks toasts over all of them.
type Model struct {
	deps Deps

	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	login       login.Model
	inbox       inbox.Model
	detail      detail.Model
	commandView command.Model
	toasts      toast.Model
	helpView    helpview.Model

	startCmd   tea.Cmd
	pollStatus appsync.Status
	statusMsg  string
	orders     int
	ready      bool
}

// New creates the root model. A restored session opens the inbox;
// otherwise the login form is shown.
func New(deps Deps) Model {
	k := keys.DefaultKeyMap()
	m := Model{
		deps:        deps,
		keys:        k,
		layout:      ui.NewLayout(80, 24),
		login:       login.New(80, 24),
		inbox:       inbox.New(deps.Store, 80, 24),
		detail:      detail.New(k, 80, 24),
		commandView: command.New(80, 24),
		toasts:      toast.New(80),
		helpView:    helpview.New(k, 80, 24),
		orders:      -1,
	}
	if deps.Session.Authenticated() {
		m.currentView = ViewInbox
		m.startCmd = m.loadInbox()
	} else {
		m.currentView = ViewLogin
		m.startCmd = m.login.Start("")
	}
	return m
}

// CurrentView returns the active view.
func (m Model) CurrentView() ViewState {
	return m.currentView
}

// Init starts the status ticker, the first view and the bus bridge.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickStatus(), m.startCmd, m.waitBridge())
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.login.SetSize(w, h)
		m.inbox.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.toasts.SetWidth(w)
		return m.updateActiveView(msg)

	case statusTickMsg:
		if m.deps.Poller != nil {
			m.pollStatus = m.deps.Poller.Status()
		}
		return m, tickStatus()

	case toast.ShowMsg:
		var cmd tea.Cmd
		m.toasts, cmd = m.toasts.Update(msg)
		return m, tea.Batch(cmd, m.waitBridge())

	case notificationsChangedMsg:
		return m, tea.Batch(m.loadInbox(), m.waitBridge())

	case sessionExpiredMsg:
		m.currentView = ViewLogin
		m.statusMsg = ""
		return m, tea.Batch(
			m.inbox.Reset(),
			m.login.Start("Your session ended: "+msg.reason),
			m.waitBridge(),
		)

	case ordersChangedMsg:
		m.orders = msg.count
		return m, m.waitBridge()

	case loginRequestMsg:
		m.statusMsg = fmt.Sprintf("Login approval requested by %s", msg.event.PhoneNumber)
		return m, m.waitBridge()

	case login.SubmitMsg:
		return m, m.submitLogin(msg.Credentials)

	case login.CancelMsg:
		return m, tea.Quit

	case loginResultMsg:
		if msg.err != nil {
			return m, m.login.SetError(msg.err)
		}
		m.currentView = ViewInbox
		m.statusMsg = "Signed in as " + msg.userID
		return m, m.loadInbox()

	case logoutResultMsg:
		m.currentView = ViewLogin
		m.statusMsg = ""
		if msg.err != nil {
			m.statusMsg = "Logout: " + msg.err.Error()
		}
		return m, tea.Batch(m.inbox.Reset(), m.login.Start("Signed out."))

	case detail.BackMsg:
		m.currentView = ViewInbox
		return m, nil

	case detail.MarkReadMsg:
		m.detail.MarkRead(msg.ID)
		return m, m.markRead(msg.ID)

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(msg)

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case actionResultMsg:
		if msg.err != nil {
			m.statusMsg = msg.err.Error()
		} else {
			m.statusMsg = msg.status
		}
		return m, m.loadInbox()

	case tea.KeyMsg:
		if m.currentView == ViewLogin || m.currentView == ViewCommand {
			// Text input owns the keyboard; only ctrl+c escapes it.
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	// Toast expiry ticks are private to the overlay.
	var toastCmd tea.Cmd
	m.toasts, toastCmd = m.toasts.Update(msg)

	next, cmd := m.updateActiveView(msg)
	return next, tea.Batch(toastCmd, cmd)
}

// handleKey processes global keys outside the login form.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit, true

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
		} else {
			m.previousView = m.currentView
			m.currentView = ViewHelp
		}
		m.helpView.Toggle()
		return nil, true

	case key.Matches(msg, m.keys.Command) && m.currentView != ViewHelp:
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true
	}

	switch m.currentView {
	case ViewHelp:
		if key.Matches(msg, m.keys.Dismiss) {
			m.currentView = m.previousView
			m.helpView.Toggle()
		}
		return nil, true
	case ViewDetail:
		// The detail view handles its own keys.
		return nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Open):
		if t, ok := m.toasts.Current(); ok {
			m.toasts.Dismiss()
			return m.markRead(t.Notification.ID), true
		}
		if n, ok := m.inbox.SelectedNotification(); ok {
			m.detail.SetNotification(n)
			m.currentView = ViewDetail
		}
		return nil, true

	case key.Matches(msg, m.keys.Dismiss):
		if m.toasts.Len() > 0 {
			m.toasts.Dismiss()
			return nil, true
		}
		return nil, false

	case key.Matches(msg, m.keys.MarkRead):
		if n, ok := m.inbox.SelectedNotification(); ok && !n.Read {
			return m.markRead(n.ID), true
		}
		return nil, true

	case key.Matches(msg, m.keys.MarkAllRead):
		return m.markAllRead(), true

	case key.Matches(msg, m.keys.ToggleRead):
		m.inbox.ToggleUnreadOnly()
		return m.loadInbox(), true

	case key.Matches(msg, m.keys.Refresh):
		if m.deps.Poller != nil {
			m.deps.Poller.Refresh()
		}
		m.statusMsg = "Checking for notifications..."
		return m.loadInbox(), true

	case key.Matches(msg, m.keys.Logout):
		return m.logout(), true

	case key.Matches(msg, m.keys.Mute):
		if m.deps.Sound != nil {
			m.setSound(!m.deps.Sound.Enabled())
		}
		return nil, true
	}
	return nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.login, cmd = m.login.Update(msg)
	case ViewInbox:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	// List data loaded while another view is active still has to land.
	if _, ok := msg.(inbox.LoadedMsg); ok && m.currentView != ViewInbox {
		m.inbox, cmd = m.inbox.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "NotifyDesk"
	if m.deps.Profile == model.ProfileAdmin {
		title = "NotifyDesk Admin"
	}
	status := m.pollerStatus()
	if m.orders >= 0 && m.currentView != ViewLogin {
		status = fmt.Sprintf("%d orders | %s", m.orders, status)
	}
	header := m.layout.RenderHeader(title, m.inbox.Unread(), status)
	statusBar := m.layout.RenderStatusBar(m.statusLine())

	return m.layout.Compose(header, m.toasts.View(), m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewLogin:
		return m.login.View()
	case ViewInbox:
		return m.inbox.View()
	case ViewDetail:
		return m.detail.View()
	case ViewCommand:
		return lipgloss.JoinVertical(lipgloss.Left, m.commandView.View(), m.inbox.View())
	case ViewHelp:
		return m.helpView.View()
	default:
		return ""
	}
}

// pollerStatus returns a short description of the poller for the header.
func (m Model) pollerStatus() string {
	if m.currentView == ViewLogin {
		return "signed out"
	}
	s := m.pollStatus
	switch {
	case !s.Running:
		return "paused"
	case s.State == appsync.PollRunning:
		return "checking..."
	case s.State == appsync.PollError:
		return "offline"
	case s.LastPoll.IsZero():
		return "waiting"
	default:
		return "updated " + s.LastPoll.Format("15:04:05")
	}
}

// statusLine returns the most recent action result or key hints.
func (m Model) statusLine() string {
	switch m.currentView {
	case ViewLogin:
		return "enter submit | esc quit"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewDetail:
		return "esc back | m mark read | j/k scroll"
	}
	if m.pollStatus.State == appsync.PollError && m.pollStatus.Error != nil {
		return "Last check failed: " + m.pollStatus.Error.Error()
	}
	if m.statusMsg != "" {
		return m.statusMsg
	}
	return m.helpView.ShortView()
}

func (m Model) waitBridge() tea.Cmd {
	if m.deps.Bridge == nil {
		return nil
	}
	return m.deps.Bridge.Wait()
}

func tickStatus() tea.Cmd {
	return tea.Tick(statusRefresh, func(time.Time) tea.Msg { return statusTickMsg{} })
}
