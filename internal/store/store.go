package store

import (
	"context"
	"time"

	"github.com/nhle/autohub/internal/model"
)

// ConfirmationRecord is one terminal outcome of an appointment confirmation
// request, kept for the session history view.
type ConfirmationRecord struct {
	ID             string
	BookingID      int
	NotificationID int
	Outcome        string
	Detail         string
	RecordedAt     time.Time
}

// History defines the local persistence used to hydrate the notification
// panel across restarts and to keep a log of confirmation outcomes.
type History interface {
	// === Notifications ===

	SaveNotification(ctx context.Context, n model.Notification) error
	RecentNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
	ClearNotifications(ctx context.Context) error
	PruneNotifications(ctx context.Context, keep int) error

	// === Confirmation outcomes ===

	LogConfirmation(ctx context.Context, rec ConfirmationRecord) error
	ConfirmationHistory(ctx context.Context, limit int) ([]ConfirmationRecord, error)
}
