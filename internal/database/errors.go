package database

import (
	"errors"
	"fmt"

	"apptchat/internal/models"
)

var (
	// ErrBookingNotFound is returned for unknown booking ids.
	ErrBookingNotFound = errors.New("booking not found")
)

// ConflictError reports that a requested slot overlaps a confirmed
// booking. It carries the conflicting booking so callers can suggest
// alternatives.
type ConflictError struct {
	Conflicting *models.Booking
}

func (e *ConflictError) Error() string {
	if e.Conflicting == nil {
		return "slot already booked"
	}
	return fmt.Sprintf("slot %s %s already booked by booking %s",
		e.Conflicting.Date, e.Conflicting.Time, e.Conflicting.ID)
}

// AsConflict unwraps err into a ConflictError if it is one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
