// Package classify turns raw hub events into UI notifications.
package classify

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/autohub/internal/events"
	"github.com/nhle/autohub/internal/model"
)

var categories = map[model.RawType]model.Category{
	model.RawBookingCreated:                 model.CategoryBooking,
	model.RawBookingCancelled:               model.CategoryBooking,
	model.RawBookingCompleted:               model.CategoryBooking,
	model.RawBookingReadyForPickup:          model.CategoryBooking,
	model.RawBookingInProgress:              model.CategoryBooking,
	model.RawPaymentReceived:                model.CategoryPayment,
	model.RawReviewReceived:                 model.CategoryReview,
	model.RawSystemAlert:                    model.CategoryAlert,
	model.RawAppointmentConfirmationRequest: model.CategoryBooking,
}

var defaultPriorities = map[model.RawType]model.Priority{
	model.RawBookingCreated:                 model.PriorityHigh,
	model.RawBookingCancelled:               model.PriorityHigh,
	model.RawBookingCompleted:               model.PriorityMedium,
	model.RawBookingReadyForPickup:          model.PriorityHigh,
	model.RawBookingInProgress:              model.PriorityMedium,
	model.RawPaymentReceived:                model.PriorityHigh,
	model.RawReviewReceived:                 model.PriorityLow,
	model.RawSystemAlert:                    model.PriorityMedium,
	model.RawAppointmentConfirmationRequest: model.PriorityHigh,
}

var defaultTitles = map[model.RawType]string{
	model.RawBookingCreated:                 "New Booking",
	model.RawBookingCancelled:               "Booking Cancelled",
	model.RawBookingCompleted:               "Service Completed",
	model.RawBookingReadyForPickup:          "Ready for Pickup",
	model.RawBookingInProgress:              "Service In Progress",
	model.RawPaymentReceived:                "Payment Received",
	model.RawReviewReceived:                 "New Review",
	model.RawSystemAlert:                    "System Alert",
	model.RawAppointmentConfirmationRequest: "Appointment Confirmation",
}

var busStatuses = map[model.RawType]events.Status{
	model.RawBookingCreated:                 events.StatusCreated,
	model.RawBookingCancelled:               events.StatusCancelled,
	model.RawBookingCompleted:               events.StatusCompleted,
	model.RawBookingReadyForPickup:          events.StatusReady,
	model.RawBookingInProgress:              events.StatusInProgress,
	model.RawAppointmentConfirmationRequest: events.StatusConfirmationRequired,
}

// Result is the classification of one raw event.
type Result struct {
	Notification model.Notification

	// Effective is the type after the message override.
	Effective model.RawType

	// ReviewPrompt is set for completed bookings seen by a car owner.
	ReviewPrompt bool

	// ConfirmationRequired routes the event to the confirmation
	// coordinator instead of a toast.
	ConfirmationRequired bool

	// Status is the bus status to announce, empty for none.
	Status events.Status

	// Toast reports whether the event should be shown as a transient toast.
	Toast bool
}

// Classifier maps raw events for a viewer with the given role.
type Classifier struct {
	role model.Role
}

// New returns a classifier for viewers with role.
func New(role model.Role) *Classifier {
	return &Classifier{role: role}
}

// Classify maps ev to a notification. It never fails: unknown types fall
// back to the system category.
func (c *Classifier) Classify(ev model.RawEvent) Result {
	effective := ev.Type
	overridden := false
	if t, ok := OverrideFromMessage(ev.Message); ok {
		effective = t
		overridden = true
	}

	category, ok := categories[effective]
	if !ok {
		category = model.CategorySystem
	}

	priority, ok := model.ParsePriority(ev.Priority)
	if !ok {
		priority, ok = defaultPriorities[effective]
		if !ok {
			priority = model.PriorityLow
		}
	}

	title := ev.Title
	if title == "" || overridden {
		if t, ok := defaultTitles[effective]; ok {
			title = t
		} else if title == "" {
			title = "Notification"
		}
	}

	timestamp := ev.CreatedAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	id := strconv.Itoa(ev.ID)
	if ev.ID == 0 {
		id = uuid.New().String()
	}

	n := model.Notification{
		ID:          id,
		Type:        category,
		Title:       title,
		Message:     ev.Message,
		Priority:    priority,
		Timestamp:   timestamp,
		Read:        ev.IsRead,
		ActionURL:   ev.ActionURL,
		ActionLabel: ev.ActionLabel,
		Data: model.NotificationData{
			NotificationID: ev.ID,
			BookingID:      ev.BookingID,
			WorkshopID:     ev.WorkshopID,
			RawType:        ev.Type,
		},
	}

	confirmation := effective == model.RawAppointmentConfirmationRequest
	return Result{
		Notification:         n,
		Effective:            effective,
		ReviewPrompt:         effective == model.RawBookingCompleted && c.role == model.RoleCarOwner,
		ConfirmationRequired: confirmation,
		Status:               busStatuses[effective],
		Toast:                !confirmation,
	}
}

// ConfirmationRequest builds the coordinator request for a classified
// confirmation event. ok is false when the event lacks a booking id or a
// deadline.
func ConfirmationRequest(ev model.RawEvent, r Result) (model.ConfirmationRequest, bool) {
	if !r.ConfirmationRequired || ev.BookingID == nil || ev.ConfirmationDeadline == nil {
		return model.ConfirmationRequest{}, false
	}
	return model.ConfirmationRequest{
		NotificationID:       ev.ID,
		BookingID:            *ev.BookingID,
		Title:                r.Notification.Title,
		Message:              ev.Message,
		ConfirmationDeadline: *ev.ConfirmationDeadline,
		CreatedAt:            r.Notification.Timestamp,
	}, true
}
