package login

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/amrut/notifydesk/internal/model"
	"github.com/amrut/notifydesk/internal/theme"
)

// SubmitMsg is dispatched when the user submits credentials.
type SubmitMsg struct {
	Credentials model.Credentials
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	userID string
	token  string
}

// Model is the login form shown while no valid session exists.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	message string
	err     error
	width   int
	height  int
}

// New creates a login form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start (re)builds the form. message is shown above it, e.g. why the
// previous session ended. The user id is kept for convenience.
func (m *Model) Start(message string) tea.Cmd {
	m.message = message
	m.err = nil
	m.fb.token = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// SetError shows a failed login attempt and restarts the form.
func (m *Model) SetError(err error) tea.Cmd {
	cmd := m.Start(m.message)
	m.err = err
	return cmd
}

// Update handles messages for the login form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		creds := model.Credentials{
			UserID: strings.TrimSpace(m.fb.userID),
			Token:  strings.TrimSpace(m.fb.token),
		}
		return m, func() tea.Msg { return SubmitMsg{Credentials: creds} }
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the login form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Sign in")}
	if m.message != "" {
		parts = append(parts, theme.HelpStyle.Render(m.message))
	}
	if m.err != nil {
		parts = append(parts, theme.ErrorStyle.Render(m.err.Error()))
	}
	parts = append(parts, m.form.View())

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("User ID").
				Placeholder("numeric id from the platform").
				Value(&m.fb.userID).
				Validate(validateRequired("User ID")),
			huh.NewInput().
				Title("Access token").
				Placeholder("paste the bearer token").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.token).
				Validate(validateRequired("Access token")),
		),
	).WithWidth(m.formWidth())
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}
