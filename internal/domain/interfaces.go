package domain

import (
	"context"
	"time"

	"apptchat/internal/models"
)

// Repository is the booking ledger boundary.
type Repository interface {
	FindConflict(ctx context.Context, date, start string, durationMinutes int) (*models.Booking, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	CancelBooking(ctx context.Context, id string) (*models.Booking, error)
	FindUserBookingAt(ctx context.Context, userID, date, start string) (*models.Booking, error)
	LatestConfirmedByUser(ctx context.Context, userID string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// SessionRepository stores per-session conversation state.
type SessionRepository interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	SetSession(ctx context.Context, session *models.Session) error
	ClearSession(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, sessionID string, limit int, window time.Duration) (bool, error)
}

// Scheduler is the appointment engine consumed by the dispatcher and
// the transport layer.
type Scheduler interface {
	CheckAvailability(ctx context.Context, date, start string, durationMinutes int) (*models.Availability, error)
	SuggestAlternatives(ctx context.Context, date, start string, durationMinutes, maxSuggestions int) ([]models.Slot, error)
	CreateBooking(ctx context.Context, req models.Booking) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID, userID, date, start string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	ServiceDuration(service string) (int, bool)
	Services() []models.Service
}

// Dispatcher turns a user utterance into engine calls and one reply.
type Dispatcher interface {
	ProcessMessage(ctx context.Context, sessionID, userID, text string) (string, error)
	ClearHistory(ctx context.Context, sessionID string) error
}

// EventPublisher is the in-process event bus boundary.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SheetsWriter mirrors bookings into a spreadsheet.
type SheetsWriter interface {
	AppendBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID string, status string) error
}

// SyncWorker queues spreadsheet mirror operations.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}
