package model

import (
	"fmt"
	"time"
)

// RawType is the notification type enum sent by the backend. It is known to
// be unreliable for completed/ready-for-pickup events.
type RawType int

const (
	RawBookingCreated RawType = iota
	RawBookingCancelled
	RawBookingCompleted
	RawBookingReadyForPickup
	RawBookingInProgress
	RawPaymentReceived
	RawReviewReceived
	RawSystemAlert
	RawAppointmentConfirmationRequest
)

var rawTypeNames = map[RawType]string{
	RawBookingCreated:                 "BookingCreated",
	RawBookingCancelled:               "BookingCancelled",
	RawBookingCompleted:               "BookingCompleted",
	RawBookingReadyForPickup:          "BookingReadyForPickup",
	RawBookingInProgress:              "BookingInProgress",
	RawPaymentReceived:                "PaymentReceived",
	RawReviewReceived:                 "ReviewReceived",
	RawSystemAlert:                    "SystemAlert",
	RawAppointmentConfirmationRequest: "AppointmentConfirmationRequest",
}

func (t RawType) String() string {
	if name, ok := rawTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("RawType(%d)", int(t))
}

// RawEvent is a notification exactly as delivered by the push hub or the
// notification REST endpoint. It is never mutated after decoding.
type RawEvent struct {
	ID         int       `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Message    string    `json:"message"`
	Type       RawType   `json:"type"`
	IsRead     bool      `json:"isRead"`
	CreatedAt  time.Time `json:"createdAt"`

	BookingID   *int   `json:"bookingId,omitempty"`
	WorkshopID  *int   `json:"workshopId,omitempty"`
	Title       string `json:"title,omitempty"`
	ActionURL   string `json:"actionUrl,omitempty"`
	ActionLabel string `json:"actionLabel,omitempty"`
	Priority    string `json:"priority,omitempty"`

	ConfirmationDeadline *time.Time `json:"confirmationDeadline,omitempty"`
}
