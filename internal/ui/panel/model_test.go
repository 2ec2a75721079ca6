package panel

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/autohub/internal/keys"
	"github.com/nhle/autohub/internal/model"
)

func loaded(t *testing.T) Model {
	t.Helper()
	m := New(keys.DefaultKeyMap(), 80, 20)
	m, _ = m.Update(NotificationsLoadedMsg{Notifications: []model.Notification{
		{ID: "1", Title: "Booking ready", Type: model.CategoryBooking, Priority: model.PriorityHigh},
		{ID: "2", Title: "Payment received", Type: model.CategoryPayment, Read: true},
		{ID: "3", Title: "System notice", Type: model.CategorySystem},
	}})
	return m
}

func TestUnreadCount(t *testing.T) {
	if got := loaded(t).UnreadCount(); got != 2 {
		t.Errorf("Expected 2 unread, got %d", got)
	}
}

func TestToggleUnreadOnlyHidesRead(t *testing.T) {
	m := loaded(t)
	m.ToggleUnreadOnly()

	if len(m.list.Items()) != 2 {
		t.Errorf("Expected 2 visible items, got %d", len(m.list.Items()))
	}

	m.ToggleUnreadOnly()
	if len(m.list.Items()) != 3 {
		t.Errorf("Expected 3 visible items, got %d", len(m.list.Items()))
	}
}

func TestMarkReadSkipsReadNotification(t *testing.T) {
	m := loaded(t)
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})

	n, ok := m.Selected()
	if !ok || n.ID != "2" {
		t.Fatalf("Expected notification 2 selected, got %+v", n)
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("Expected no mark-read command for a read notification")
	}
}

func TestDeleteEmitsSelectedID(t *testing.T) {
	m := loaded(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	if cmd == nil {
		t.Fatal("Expected a delete command")
	}
	msg, ok := cmd().(DeleteMsg)
	if !ok || msg.ID != "1" {
		t.Errorf("Expected DeleteMsg for 1, got %#v", cmd())
	}
}

func TestEmptyState(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	if !strings.Contains(m.View(), "No notifications yet") {
		t.Error("Expected empty state text")
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-30 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
		{time.Time{}, ""},
	}
	for _, tt := range tests {
		if got := relativeTimeFrom(tt.at, now); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected unchanged text, got %q", got)
	}
	if got := truncate("a much longer message", 8); got != "a much …" {
		t.Errorf("Expected truncated text, got %q", got)
	}
}
