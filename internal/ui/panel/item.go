package panel

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/theme"
)

// NotificationItem wraps a model.Notification so it can be used in a
// bubbles/list.
type NotificationItem struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i NotificationItem) FilterValue() string {
	return i.Notification.Title + " " + i.Notification.Message
}

// Title returns the notification title for the list.
func (i NotificationItem) Title() string { return i.Notification.Title }

// Description returns a short summary line for the list.
func (i NotificationItem) Description() string {
	parts := []string{
		string(i.Notification.Type),
		string(i.Notification.Priority),
		relativeTime(i.Notification.Timestamp),
	}
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for rendering notifications.
type ItemDelegate struct {
	// now is overridable in tests.
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a notification as a title line and a message line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ni, ok := item.(NotificationItem)
	if !ok {
		return
	}
	n := ni.Notification
	isSelected := index == m.Index()

	marker := " "
	if !n.Read {
		marker = theme.PriorityStyle(n.Priority).Render("●")
	}
	category := theme.CategoryLabelStyle(n.Type).Render(string(n.Type))
	age := theme.DimmedStyle.Render(relativeTimeFrom(n.Timestamp, d.clock()))

	width := m.Width() - 4
	if width < 10 {
		width = 10
	}

	title := n.Title
	message := truncate(n.Message, width)

	var titleLine, messageLine string
	switch {
	case isSelected:
		titleLine = theme.SelectedItemStyle.Render(title)
		messageLine = theme.ListItemStyle.Render(message)
	case n.Read:
		titleLine = theme.ListItemStyle.Inherit(theme.DimmedStyle).Render(title)
		messageLine = theme.ListItemStyle.Inherit(theme.DimmedStyle).Render(message)
	default:
		titleLine = theme.ListItemStyle.Bold(true).Render(title)
		messageLine = theme.ListItemStyle.Render(message)
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top, marker, titleLine, " ", category, " ", age)
	fmt.Fprintf(w, "%s\n%s", header, messageLine)
}

func (d ItemDelegate) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

// truncate shortens s to at most width cells, appending an ellipsis.
func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

func relativeTime(t time.Time) string {
	return relativeTimeFrom(t, time.Now())
}

// relativeTimeFrom returns a human-readable age such as "5m ago".
func relativeTimeFrom(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
