package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/theme"
)

// Layout manages the terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
	// InfoHeight is reserved for the job board and toast lines.
	InfoHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1, InfoHeight to 2.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
		InfoHeight:      2,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area,
// accounting for the header, info lines and status bar.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.StatusBarHeight - l.InfoHeight
	if h < 0 {
		return 0
	}
	return h
}

// ConnectionIndicator renders the push channel state for the header.
func ConnectionIndicator(s model.ConnectionState) string {
	var dot string
	switch s {
	case model.Connected:
		dot = "●"
	case model.Connecting, model.Reconnecting:
		dot = "◐"
	default:
		dot = "○"
	}
	return theme.ConnectionStyle(s).Render(dot + " " + s.String())
}

// RenderHeader renders the top header bar with the title, the unread count
// and the connection indicator.
func (l Layout) RenderHeader(title string, unread int, state model.ConnectionState) string {
	if unread > 0 {
		title = fmt.Sprintf("%s [%d unread]", title, unread)
	}
	titleRendered := theme.HeaderStyle.Render(title)
	statusRendered := ConnectionIndicator(state)

	gap := l.Width -
		lipgloss.Width(titleRendered) -
		lipgloss.Width(statusRendered)
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		filler,
		statusRendered,
	)
}

// RenderInfoLine renders a single full-width line, truncated to the width.
func (l Layout) RenderInfoLine(s string) string {
	return lipgloss.NewStyle().
		Width(l.Width).
		MaxWidth(l.Width).
		MaxHeight(1).
		Render(s)
}

// RenderStatusBar renders the bottom status bar with keyboard hints.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}

	filler := theme.StatusBarStyle.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(theme.StatusBarStyle.GetBackground()).
			Render(""),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, info lines and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	info []string,
	statusBar string,
) string {
	parts := []string{header, content}
	for _, line := range info {
		parts = append(parts, l.RenderInfoLine(line))
	}
	parts = append(parts, statusBar)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
