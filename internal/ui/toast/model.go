package toast

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amrut/notifydesk/internal/present"
	"github.com/amrut/notifydesk/internal/theme"
)

// maxVisible caps how many toasts are stacked at once; older ones are
// dropped from the stack first.
const maxVisible = 3

// ShowMsg asks the overlay to display a toast.
type ShowMsg struct {
	Toast present.Toast
}

// expireMsg is scheduled for a toast's expiry time.
type expireMsg struct {
	at time.Time
}

// Model is the toast overlay. The newest toast is first.
type Model struct {
	toasts []present.Toast
	now    func() time.Time
	width  int
}

// New creates an empty overlay.
func New(width int) Model {
	return Model{now: time.Now, width: width}
}

// Update handles show and expiry messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ShowMsg:
		m.toasts = append([]present.Toast{msg.Toast}, m.toasts...)
		if len(m.toasts) > maxVisible {
			m.toasts = m.toasts[:maxVisible]
		}
		wait := msg.Toast.ExpiresAt.Sub(m.now())
		if wait < 0 {
			wait = 0
		}
		return m, tea.Tick(wait, func(t time.Time) tea.Msg {
			return expireMsg{at: t}
		})

	case expireMsg:
		m.prune(msg.at)
	}
	return m, nil
}

func (m *Model) prune(now time.Time) {
	kept := m.toasts[:0]
	for _, t := range m.toasts {
		if !t.Expired(now) {
			kept = append(kept, t)
		}
	}
	m.toasts = kept
}

// Current returns the newest visible toast.
func (m Model) Current() (present.Toast, bool) {
	if len(m.toasts) == 0 {
		return present.Toast{}, false
	}
	return m.toasts[0], true
}

// Dismiss removes the newest toast.
func (m *Model) Dismiss() {
	if len(m.toasts) > 0 {
		m.toasts = m.toasts[1:]
	}
}

// Len returns the number of visible toasts.
func (m Model) Len() int {
	return len(m.toasts)
}

// SetWidth updates the available width.
func (m *Model) SetWidth(width int) {
	m.width = width
}

// View renders the stacked toasts, right aligned.
func (m Model) View() string {
	if len(m.toasts) == 0 {
		return ""
	}

	boxWidth := m.width / 2
	if boxWidth < 30 {
		boxWidth = min(30, m.width)
	}

	rendered := make([]string, 0, len(m.toasts))
	for _, t := range m.toasts {
		category := t.Category.String()
		title := lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.CategoryColor(category)).
			Render(t.Title)

		content := title
		if t.Body != "" {
			content = lipgloss.JoinVertical(lipgloss.Left, title, t.Body)
		}

		box := theme.ToastStyle(category).Width(boxWidth - 2).Render(content)
		rendered = append(rendered, box)
	}

	stack := lipgloss.JoinVertical(lipgloss.Right, rendered...)
	return lipgloss.PlaceHorizontal(m.width, lipgloss.Right, stack)
}
