package jobboard

import (
	"strings"
	"testing"

	"github.com/nhle/autohub/internal/events"
	"github.com/nhle/autohub/internal/model"
)

func TestApplyMovesBookingToFront(t *testing.T) {
	m := New(model.RoleWorkshop)
	m.Apply(events.StatusChanged{BookingID: 1, Status: events.StatusCreated})
	m.Apply(events.StatusChanged{BookingID: 2, Status: events.StatusCreated})
	m.Apply(events.StatusChanged{BookingID: 1, Status: events.StatusInProgress})

	if len(m.entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(m.entries))
	}
	if m.entries[0].bookingID != 1 {
		t.Errorf("Expected booking 1 first, got %d", m.entries[0].bookingID)
	}
	if s, _ := m.Status(1); s != events.StatusInProgress {
		t.Errorf("Expected inprogress, got %q", s)
	}
}

func TestApplyKeepsMostRecentEntries(t *testing.T) {
	m := New(model.RoleWorkshop)
	for id := 1; id <= maxEntries+2; id++ {
		m.Apply(events.StatusChanged{BookingID: id, Status: events.StatusCreated})
	}

	if len(m.entries) != maxEntries {
		t.Fatalf("Expected %d entries, got %d", maxEntries, len(m.entries))
	}
	if _, ok := m.Status(1); ok {
		t.Error("Expected the oldest booking to be dropped")
	}
}

func TestPaymentDueOnlyForCarOwner(t *testing.T) {
	owner := New(model.RoleCarOwner)
	owner.Apply(events.StatusChanged{BookingID: 5, Status: events.StatusCompleted})
	owner.Apply(events.StatusChanged{BookingID: 6, Status: events.StatusReady})

	due := owner.PaymentDue()
	if len(due) != 1 || due[0] != 5 {
		t.Errorf("Expected payment due for booking 5, got %v", due)
	}

	workshop := New(model.RoleWorkshop)
	workshop.Apply(events.StatusChanged{BookingID: 5, Status: events.StatusCompleted})
	if due := workshop.PaymentDue(); len(due) != 0 {
		t.Errorf("Expected no payment due for a workshop, got %v", due)
	}
}

func TestViewEmpty(t *testing.T) {
	if !strings.Contains(New(model.RoleCarOwner).View(), "no recent activity") {
		t.Error("Expected empty job board text")
	}
}
