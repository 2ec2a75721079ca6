package model

import "time"

// Booking status values as sent by the backend.
const (
	BookingPending    = "Pending"
	BookingConfirmed  = "Confirmed"
	BookingInProgress = "InProgress"
	BookingReady      = "ReadyForPickup"
	BookingCompleted  = "Completed"
	BookingCancelled  = "Cancelled"
)

// Booking is the subset of a marketplace booking the client needs to detect
// due appointments.
type Booking struct {
	ID              int       `json:"id"`
	CarID           int       `json:"carId"`
	WorkshopID      int       `json:"workshopId"`
	Status          string    `json:"status"`
	AppointmentDate time.Time `json:"appointmentDate"`
	ServiceName     string    `json:"serviceName,omitempty"`
}

// Car is an owner's registered vehicle.
type Car struct {
	ID    int    `json:"id"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Plate string `json:"licensePlate"`
}
