package jobboard

import (
	"fmt"
	"strings"

	"github.com/nhle/autohub/internal/events"
	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/theme"
)

// maxEntries bounds the number of bookings shown on the status line.
const maxEntries = 4

// StatusMsg carries a bus event into the bubbletea loop.
type StatusMsg events.StatusChanged

type entry struct {
	bookingID int
	status    events.Status
}

// Model is the job board status line. It reacts to bus events only and
// knows nothing about where they came from.
type Model struct {
	role    model.Role
	entries []entry
}

// New creates a job board for the given viewer role.
func New(role model.Role) Model {
	return Model{role: role}
}

// Apply records ev, moving its booking to the front.
func (m *Model) Apply(ev events.StatusChanged) {
	for i, e := range m.entries {
		if e.bookingID == ev.BookingID {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	m.entries = append([]entry{{bookingID: ev.BookingID, status: ev.Status}}, m.entries...)
	if len(m.entries) > maxEntries {
		m.entries = m.entries[:maxEntries]
	}
}

// Status returns the last status seen for bookingID.
func (m Model) Status(bookingID int) (events.Status, bool) {
	for _, e := range m.entries {
		if e.bookingID == bookingID {
			return e.status, true
		}
	}
	return "", false
}

// PaymentDue returns the bookings a car owner should pay for, most recent
// first.
func (m Model) PaymentDue() []int {
	if m.role != model.RoleCarOwner {
		return nil
	}
	var ids []int
	for _, e := range m.entries {
		if e.status == events.StatusCompleted {
			ids = append(ids, e.bookingID)
		}
	}
	return ids
}

// View renders the status line.
func (m Model) View() string {
	if len(m.entries) == 0 {
		return theme.DimmedStyle.Render("Jobs: no recent activity")
	}

	parts := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		label := theme.BookingStatusStyle(string(e.status)).Render(string(e.status))
		parts = append(parts, fmt.Sprintf("#%d %s", e.bookingID, label))
	}
	line := "Jobs: " + strings.Join(parts, " · ")

	if due := m.PaymentDue(); len(due) > 0 {
		line += "  " + theme.SuccessStyle.Render(fmt.Sprintf("Payment due for booking #%d", due[0]))
	}
	return line
}
