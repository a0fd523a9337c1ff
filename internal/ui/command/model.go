package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amrut/notifydesk/internal/theme"
)

// Name identifies a palette command.
type Name string

const (
	Refresh Name = "refresh"
	ReadAll Name = "read-all"
	Unread  Name = "unread"
	Sound   Name = "sound"
	Volume  Name = "volume"
	Logout  Name = "logout"
	Quit    Name = "quit"
)

// aliases maps accepted spellings to commands.
var aliases = map[string]Name{
	"refresh":  Refresh,
	"sync":     Refresh,
	"read-all": ReadAll,
	"readall":  ReadAll,
	"unread":   Unread,
	"sound":    Sound,
	"mute":     Sound,
	"volume":   Volume,
	"vol":      Volume,
	"logout":   Logout,
	"quit":     Quit,
	"q":        Quit,
}

// CommandMsg is emitted when the user executes a valid command.
type CommandMsg struct {
	Name Name
	Arg  string
	// Volume is the parsed argument of the volume command.
	Volume float64
}

// CancelMsg is emitted when the palette is closed without a command.
type CancelMsg struct{}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	err    error
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "refresh, read-all, unread, sound, volume 0.5, logout, quit"
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions([]string{
		string(Refresh), string(ReadAll), string(Unread),
		string(Sound), string(Volume), string(Logout), string(Quit),
	})
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Parse turns palette input into a command.
func Parse(input string) (CommandMsg, error) {
	fields := strings.Fields(strings.ToLower(input))
	if len(fields) == 0 {
		return CommandMsg{}, fmt.Errorf("empty command")
	}
	name, ok := aliases[fields[0]]
	if !ok {
		return CommandMsg{}, fmt.Errorf("unknown command %q", fields[0])
	}

	msg := CommandMsg{Name: name}
	if len(fields) > 1 {
		msg.Arg = strings.Join(fields[1:], " ")
	}

	switch name {
	case Volume:
		v, err := strconv.ParseFloat(msg.Arg, 64)
		if err != nil || v < 0 || v > 1 {
			return CommandMsg{}, fmt.Errorf("volume expects a number between 0 and 1")
		}
		msg.Volume = v
	case Sound:
		switch msg.Arg {
		case "", "on", "off":
		default:
			return CommandMsg{}, fmt.Errorf("sound expects on or off")
		}
	}
	return msg, nil
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			parsed, err := Parse(m.input.Value())
			if err != nil {
				m.err = err
				return m, nil
			}
			m.input.Reset()
			m.err = nil
			return m, func() tea.Msg { return parsed }
		case "esc":
			m.input.Reset()
			m.err = nil
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Command Palette"), m.input.View()}
	if m.err != nil {
		parts = append(parts, theme.ErrorStyle.Render(m.err.Error()))
	}

	return theme.BorderStyle.
		Padding(0, 1).
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
