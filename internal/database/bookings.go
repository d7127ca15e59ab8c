package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"apptchat/internal/models"
	"apptchat/internal/parse"
)

const bookingColumns = `id, user_id, user_name, phone, service, date, time, duration_minutes, status, created_at, updated_at`

// querier is satisfied by *sql.DB and *sql.Tx so conflict scans can run
// both standalone and inside the create transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// FindConflict returns the first confirmed booking on date whose
// interval overlaps [start, start+duration), or nil when the slot is
// free. Intervals are half-open: back-to-back bookings do not conflict.
func (db *DB) FindConflict(ctx context.Context, date, start string, durationMinutes int) (*models.Booking, error) {
	return findConflict(ctx, db.db, date, start, durationMinutes)
}

func findConflict(ctx context.Context, q querier, date, start string, durationMinutes int) (*models.Booking, error) {
	reqStart, err := parse.MinutesOfDay(start)
	if err != nil {
		return nil, err
	}
	reqEnd := reqStart + durationMinutes

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE date = ? AND status = ? ORDER BY time ASC`
	rows, err := q.QueryContext(ctx, query, date, models.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to scan bookings for conflicts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bStart, err := parse.MinutesOfDay(b.Time)
		if err != nil {
			return nil, fmt.Errorf("corrupt time on booking %s: %w", b.ID, err)
		}
		bEnd := bStart + b.DurationMinutes
		if reqStart < bEnd && bStart < reqEnd {
			return b, nil
		}
	}
	return nil, rows.Err()
}

// CreateBookingWithLock re-checks the slot and inserts within one
// transaction, closing the check-then-act race between concurrent
// writers. On overlap it returns a *ConflictError and writes nothing.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	conflict, err := findConflict(ctx, tx, booking.Date, booking.Time, booking.DurationMinutes)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	if conflict != nil {
		return &ConflictError{Conflicting: conflict}
	}

	now := time.Now()
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		booking.ID,
		booking.UserID,
		booking.UserName,
		booking.Phone,
		booking.Service,
		booking.Date,
		booking.Time,
		booking.DurationMinutes,
		models.StatusConfirmed,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	booking.Status = models.StatusConfirmed
	booking.CreatedAt = now
	booking.UpdatedAt = now

	return tx.Commit()
}

// GetBooking returns a booking by id.
func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	row := db.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// CancelBooking flips a booking to cancelled. Cancelling an already
// cancelled booking is a no-op success; an unknown id is
// ErrBookingNotFound. Cancelled is terminal.
func (db *DB) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.StatusCancelled {
		return booking, nil
	}

	now := time.Now()
	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	_, err = db.db.ExecContext(ctx, query, models.StatusCancelled, now, id, models.StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}

	booking.Status = models.StatusCancelled
	booking.UpdatedAt = now
	return booking, nil
}

// FindUserBookingAt returns the user's confirmed booking at the exact
// slot, or ErrBookingNotFound.
func (db *DB) FindUserBookingAt(ctx context.Context, userID, date, start string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? AND date = ? AND time = ? AND status = ?`
	row := db.db.QueryRowContext(ctx, query, userID, date, start, models.StatusConfirmed)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user booking: %w", err)
	}
	return b, nil
}

// LatestConfirmedByUser returns the user's most recent confirmed
// booking by calendar position, or ErrBookingNotFound.
func (db *DB) LatestConfirmedByUser(ctx context.Context, userID string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? AND status = ? ORDER BY date DESC, time DESC LIMIT 1`
	row := db.db.QueryRowContext(ctx, query, userID, models.StatusConfirmed)
	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest booking: %w", err)
	}
	return b, nil
}

// ListBookings returns bookings matching the filter, created_at
// ascending.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Date != "" {
		query += ` AND date = ?`
		args = append(args, filter.Date)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.UserName,
		&b.Phone,
		&b.Service,
		&b.Date,
		&b.Time,
		&b.DurationMinutes,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
