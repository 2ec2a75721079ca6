package panel

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/autohub/internal/keys"
	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/theme"
)

// NotificationsLoadedMsg carries the store's current list.
type NotificationsLoadedMsg struct {
	Notifications []model.Notification
}

// MarkReadMsg asks for one notification to be marked read.
type MarkReadMsg struct {
	ID string
}

// MarkAllReadMsg asks for every notification to be marked read.
type MarkAllReadMsg struct{}

// DeleteMsg asks for one notification to be removed.
type DeleteMsg struct {
	ID string
}

// ClearMsg asks for every notification to be removed.
type ClearMsg struct{}

// Model is the notification panel.
type Model struct {
	list       list.Model
	keys       *keys.KeyMap
	all        []model.Notification
	unreadOnly bool
	width      int
	height     int
}

// New creates a new notification panel.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("notification", "notifications")

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// Update handles messages for the panel.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case NotificationsLoadedMsg:
		m.all = msg.Notifications
		return m, m.refreshItems()

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.MarkRead):
		n, ok := m.Selected()
		if !ok || n.Read {
			return m, nil
		}
		return m, func() tea.Msg { return MarkReadMsg{ID: n.ID} }

	case key.Matches(msg, m.keys.MarkAllRead):
		if m.UnreadCount() == 0 {
			return m, nil
		}
		return m, func() tea.Msg { return MarkAllReadMsg{} }

	case key.Matches(msg, m.keys.Delete):
		n, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return DeleteMsg{ID: n.ID} }

	case key.Matches(msg, m.keys.Clear):
		if len(m.all) == 0 {
			return m, nil
		}
		return m, func() tea.Msg { return ClearMsg{} }
	}

	// Delegate to the list for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// ToggleUnreadOnly switches between all notifications and unread ones.
func (m *Model) ToggleUnreadOnly() tea.Cmd {
	m.unreadOnly = !m.unreadOnly
	return m.refreshItems()
}

// UnreadOnly reports whether read notifications are hidden.
func (m Model) UnreadOnly() bool {
	return m.unreadOnly
}

func (m *Model) refreshItems() tea.Cmd {
	items := make([]list.Item, 0, len(m.all))
	for _, n := range m.all {
		if m.unreadOnly && n.Read {
			continue
		}
		items = append(items, NotificationItem{Notification: n})
	}
	return m.list.SetItems(items)
}

// Selected returns the highlighted notification.
func (m Model) Selected() (model.Notification, bool) {
	item, ok := m.list.SelectedItem().(NotificationItem)
	if !ok {
		return model.Notification{}, false
	}
	return item.Notification, true
}

// UnreadCount returns the number of unread notifications.
func (m Model) UnreadCount() int {
	count := 0
	for _, n := range m.all {
		if !n.Read {
			count++
		}
	}
	return count
}

// View renders the panel.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// renderEmptyState shows guidance text when nothing is listed.
func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.unreadOnly && len(m.all) > 0 {
		return style.Render(fmt.Sprintf(
			"No unread notifications.\n%d read hidden. Type :unread to show them.", len(m.all)))
	}
	return style.Render("No notifications yet.\n\nNew activity will appear here as it arrives.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
