package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/amrut/notifydesk/internal/theme"
)

// Layout manages the terminal frame: header, toast stack, content and
// status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header and status bar.
func (l Layout) ContentHeight() int {
	return max(0, l.Height-l.HeaderHeight-l.StatusBarHeight)
}

// RenderHeader renders the title bar: title, an optional unread badge,
// and the poller status on the right.
func (l Layout) RenderHeader(title string, unread int, status string) string {
	left := theme.HeaderStyle.Render(title)
	if unread > 0 {
		left = lipgloss.JoinHorizontal(lipgloss.Top, left, theme.BadgeStyle.Render(badgeText(unread)))
	}
	right := theme.HeaderStyle.Render(status)

	gap := max(0, l.Width-lipgloss.Width(left)-lipgloss.Width(right))
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, left, filler, right)
}

// RenderStatusBar renders the bottom status bar.
func (l Layout) RenderStatusBar(text string) string {
	return theme.StatusBarStyle.
		Width(l.Width).
		MaxHeight(l.StatusBarHeight).
		Render(text)
}

// Compose joins the frame. The toast stack is laid over the top lines
// of the content so the content never shifts when toasts come and go.
func (l Layout) Compose(header, toasts, content, statusBar string) string {
	height := l.ContentHeight()
	body := lipgloss.NewStyle().
		Width(l.Width).
		Height(height).
		MaxHeight(height).
		Render(overlay(content, toasts))

	return lipgloss.JoinVertical(lipgloss.Left, header, body, statusBar)
}

// overlay replaces the first lines of base with the lines of top.
func overlay(base, top string) string {
	if top == "" {
		return base
	}
	baseLines := strings.Split(base, "\n")
	topLines := strings.Split(top, "\n")
	for i, line := range topLines {
		if i < len(baseLines) {
			baseLines[i] = line
		} else {
			baseLines = append(baseLines, line)
		}
	}
	return strings.Join(baseLines, "\n")
}

// badgeText caps the unread counter at two digits.
func badgeText(n int) string {
	if n > 99 {
		return "99+"
	}
	return strconv.Itoa(n)
}
