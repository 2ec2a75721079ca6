package testutil

import (
	"testing"
	"time"

	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Notification returns a ready-for-pickup booking notification stamped ts.
func Notification(id string, ts time.Time, bookingID *int) model.Notification {
	return model.Notification{
		ID:          id,
		Type:        model.CategoryBooking,
		Title:       "Ready for Pickup",
		Message:     "Your car is ready for pickup",
		Priority:    model.PriorityHigh,
		Timestamp:   ts,
		ActionURL:   "/bookings/1",
		ActionLabel: "View",
		Data: model.NotificationData{
			BookingID: bookingID,
			RawType:   model.RawBookingReadyForPickup,
		},
	}
}
