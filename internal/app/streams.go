package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/autohub/internal/confirm"
	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/ui/panel"
)

// waitForSnapshot returns a tea.Cmd that waits for the next coordinator
// snapshot. It yields nil once the subscription is closed.
func waitForSnapshot(ch <-chan confirm.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

// waitForNotifications returns a tea.Cmd that waits for the next store
// list. It yields nil once the subscription is closed.
func waitForNotifications(ch <-chan []model.Notification) tea.Cmd {
	return func() tea.Msg {
		list, ok := <-ch
		if !ok {
			return nil
		}
		return panel.NotificationsLoadedMsg{Notifications: list}
	}
}
