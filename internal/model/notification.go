package model

import "time"

// Category is the UI-facing notification category.
type Category string

const (
	CategoryBooking Category = "booking"
	CategoryPayment Category = "payment"
	CategoryReview  Category = "review"
	CategorySystem  Category = "system"
	CategoryAlert   Category = "alert"
)

// Priority is the UI-facing notification priority.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority returns the priority named by s and whether s was a known
// priority name.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s), true
	}
	return "", false
}

// NotificationData keeps enough of the raw event for read-state
// reconciliation and action dispatch.
type NotificationData struct {
	NotificationID int     `json:"notificationId"`
	BookingID      *int    `json:"bookingId,omitempty"`
	WorkshopID     *int    `json:"workshopId,omitempty"`
	RawType        RawType `json:"rawType"`
}

// Notification is a classified notification owned by the notification store.
type Notification struct {
	// ID is the store key. Backend notifications use their numeric id,
	// locally generated ones a UUID.
	ID string `json:"id" db:"id"`

	Type     Category `json:"type" db:"type"`
	Title    string   `json:"title" db:"title"`
	Message  string   `json:"message" db:"message"`
	Priority Priority `json:"priority" db:"priority"`

	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Read      bool      `json:"read" db:"read"`

	ActionURL   string `json:"actionUrl,omitempty" db:"action_url"`
	ActionLabel string `json:"actionLabel,omitempty" db:"action_label"`

	Data NotificationData `json:"data" db:"-"`
}
