package model

import "time"

// ConfirmationRequest asks the viewer to acknowledge an upcoming appointment
// before ConfirmationDeadline.
type ConfirmationRequest struct {
	NotificationID       int       `json:"notificationId"`
	BookingID            int       `json:"bookingId"`
	Title                string    `json:"title"`
	Message              string    `json:"message"`
	ConfirmationDeadline time.Time `json:"confirmationDeadline"`
	CreatedAt            time.Time `json:"createdAt"`
}

// Remaining returns the time left until the deadline, relative to now.
func (r ConfirmationRequest) Remaining(now time.Time) time.Duration {
	return r.ConfirmationDeadline.Sub(now)
}
