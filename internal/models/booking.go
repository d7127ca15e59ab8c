package models

import "time"

// Booking is a single appointment on the shared calendar. Date and Time
// are kept as separate strings ("2006-01-02" / "15:04") to match the
// wire format expected by existing clients.
type Booking struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	UserName        string    `json:"user_name"`
	Phone           string    `json:"phone"`
	Service         string    `json:"service"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"` // confirmed, cancelled
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Slot is a candidate or occupied interval on the calendar.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Availability is the result of a slot check.
type Availability struct {
	Available   bool     `json:"available"`
	Conflicting *Booking `json:"conflicting_booking,omitempty"`
}

// BookingFilter narrows ListBookings. Zero values mean "no filter".
type BookingFilter struct {
	UserID string
	Date   string
	Status string
}
