package dialog

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/autohub/internal/confirm"
	"github.com/nhle/autohub/internal/keys"
	"github.com/nhle/autohub/internal/theme"
)

// AnswerMsg is emitted when the viewer confirms or declines the visible
// request.
type AnswerMsg struct {
	BookingID int
	Confirmed bool
}

// CloseMsg is emitted when the viewer dismisses the dialog.
type CloseMsg struct {
	BookingID int
}

// Model renders the coordinator's latest snapshot and turns key presses
// into answers. It holds no workflow state of its own.
type Model struct {
	keys     *keys.KeyMap
	snapshot confirm.Snapshot
	width    int
}

// New creates a dialog model.
func New(keys *keys.KeyMap, width int) Model {
	return Model{keys: keys, width: width}
}

// SetSnapshot replaces the rendered snapshot.
func (m *Model) SetSnapshot(s confirm.Snapshot) {
	m.snapshot = s
}

// Snapshot returns the rendered snapshot.
func (m Model) Snapshot() confirm.Snapshot {
	return m.snapshot
}

// Active reports whether a request is on screen.
func (m Model) Active() bool {
	return m.snapshot.Request != nil
}

// SetWidth updates the dialog width.
func (m *Model) SetWidth(width int) {
	m.width = width
}

// Update handles key presses while a request is on screen.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || !m.Active() {
		return m, nil
	}
	bookingID := m.snapshot.Request.BookingID

	switch {
	case key.Matches(keyMsg, m.keys.Confirm), key.Matches(keyMsg, m.keys.Decline):
		vis, ok := m.snapshot.Phase.(confirm.Visible)
		if !ok || !vis.Actionable() {
			return m, nil
		}
		confirmed := key.Matches(keyMsg, m.keys.Confirm)
		return m, func() tea.Msg {
			return AnswerMsg{BookingID: bookingID, Confirmed: confirmed}
		}

	case key.Matches(keyMsg, m.keys.Close):
		return m, func() tea.Msg {
			return CloseMsg{BookingID: bookingID}
		}
	}
	return m, nil
}

// View renders the dialog, or nothing when no request is on screen.
func (m Model) View() string {
	if !m.Active() {
		return ""
	}
	req := m.snapshot.Request

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite)

	lines := []string{
		titleStyle.Render(req.Title),
		"",
		req.Message,
		"",
	}

	switch p := m.snapshot.Phase.(type) {
	case confirm.Visible:
		countdown := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorYellow)
		lines = append(lines, "Time remaining: "+countdown.Render(p.Countdown()))
		if p.Error != "" {
			lines = append(lines, theme.ErrorStyle.Render(p.Error))
		}
		if p.InFlight {
			lines = append(lines, theme.HelpStyle.Render("Submitting..."))
		} else {
			lines = append(lines, theme.HelpStyle.Render("y confirm | n decline | esc close"))
		}
	case confirm.Confirmed:
		lines = append(lines, theme.SuccessStyle.Render(p.Message))
	case confirm.Declined:
		lines = append(lines, theme.SuccessStyle.Render(p.Message))
	case confirm.Expired:
		lines = append(lines,
			theme.ErrorStyle.Render("Confirmation window has expired."),
			theme.HelpStyle.Render("esc close"),
		)
	}

	if m.snapshot.Queued > 0 {
		lines = append(lines, "", theme.DimmedStyle.Render(
			fmt.Sprintf("%d more waiting", m.snapshot.Queued)))
	}

	width := m.width - 8
	if width < 20 {
		width = 20
	}
	return theme.DialogStyle.
		Width(width).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
