package help

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"github.com/amrut/notifydesk/internal/keys"
	"github.com/amrut/notifydesk/internal/theme"
)

// Model renders key hints: a one-line summary for the status bar and a
// full overlay when toggled.
type Model struct {
	keys     *keys.KeyMap
	help     help.Model
	expanded bool
	width    int
	height   int
}

// New creates a new help model.
func New(k *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   k,
		help:   h,
		width:  width,
		height: height,
	}
}

// Toggle switches between the short hints and the full overlay.
func (m *Model) Toggle() {
	m.expanded = !m.expanded
}

// Expanded reports whether the full overlay is shown.
func (m Model) Expanded() bool {
	return m.expanded
}

// ShortView renders the compact hints for the status bar.
func (m Model) ShortView() string {
	h := m.help
	h.ShowAll = false
	return h.View(m.keys)
}

// View renders the full keyboard reference.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Keyboard Shortcuts")

	h := m.help
	h.Width = m.width - 4
	h.ShowAll = true

	content := lipgloss.JoinVertical(lipgloss.Left, title, h.View(m.keys))

	return theme.BorderStyle.
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width
}
