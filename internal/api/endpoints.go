package api

import (
	"context"
	"fmt"

	"github.com/nhle/autohub/internal/model"
)

// GetNotifications returns the current user's notifications, newest first
// as ordered by the backend.
func (c *Client) GetNotifications(ctx context.Context) ([]model.RawEvent, error) {
	var events []model.RawEvent
	if err := c.Get(ctx, "/api/notifications", &events); err != nil {
		return nil, fmt.Errorf("fetching notifications: %w", err)
	}
	return events, nil
}

// MarkAsRead acknowledges a notification.
func (c *Client) MarkAsRead(ctx context.Context, notificationID int) error {
	path := fmt.Sprintf("/api/notifications/%d/read", notificationID)
	if err := c.Put(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("marking notification %d read: %w", notificationID, err)
	}
	return nil
}

// GetWorkshopBookings lists the bookings of a workshop.
func (c *Client) GetWorkshopBookings(ctx context.Context, workshopID int) ([]model.Booking, error) {
	var bookings []model.Booking
	path := fmt.Sprintf("/api/bookings/workshop/%d", workshopID)
	if err := c.Get(ctx, path, &bookings); err != nil {
		return nil, fmt.Errorf("fetching workshop %d bookings: %w", workshopID, err)
	}
	return bookings, nil
}

// GetMyCars lists the signed-in owner's cars.
func (c *Client) GetMyCars(ctx context.Context) ([]model.Car, error) {
	var cars []model.Car
	if err := c.Get(ctx, "/api/cars/my", &cars); err != nil {
		return nil, fmt.Errorf("fetching cars: %w", err)
	}
	return cars, nil
}

// GetCarBookings lists the bookings of one car.
func (c *Client) GetCarBookings(ctx context.Context, carID int) ([]model.Booking, error) {
	var bookings []model.Booking
	path := fmt.Sprintf("/api/bookings/car/%d", carID)
	if err := c.Get(ctx, path, &bookings); err != nil {
		return nil, fmt.Errorf("fetching car %d bookings: %w", carID, err)
	}
	return bookings, nil
}

// UpdateBookingStatus moves a booking to status.
func (c *Client) UpdateBookingStatus(ctx context.Context, bookingID int, status string) error {
	path := fmt.Sprintf("/api/bookings/%d/status", bookingID)
	body := map[string]string{"status": status}
	if err := c.Put(ctx, path, body, nil); err != nil {
		return fmt.Errorf("updating booking %d status: %w", bookingID, err)
	}
	return nil
}

// ConfirmAppointment records the viewer's answer to a confirmation request.
func (c *Client) ConfirmAppointment(ctx context.Context, bookingID int, confirmed bool) error {
	path := fmt.Sprintf("/api/bookings/%d/confirm-appointment", bookingID)
	body := map[string]bool{"confirmed": confirmed}
	if err := c.Post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("confirming appointment for booking %d: %w", bookingID, err)
	}
	return nil
}
