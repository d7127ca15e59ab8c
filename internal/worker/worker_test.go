package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apptchat/internal/database"
	"apptchat/internal/models"
)

// fakeSheets records mirror calls and can be told to fail.
type fakeSheets struct {
	mu       sync.Mutex
	appended []string
	statuses map[string]string
	err      error
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{statuses: make(map[string]string)}
}

func (f *fakeSheets) AppendBooking(ctx context.Context, booking *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, booking.ID)
	return nil
}

func (f *fakeSheets) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.statuses[bookingID] = status
	return nil
}

func setupWorker(t *testing.T, sheets *fakeSheets, retry RetryPolicy) (*SheetsWorker, *database.DB) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewSheetsWorker(db, sheets, nil, retry, logger), db
}

func workerBooking() *models.Booking {
	return &models.Booking{
		ID:              uuid.NewString(),
		UserID:          "u1",
		UserName:        "Test User",
		Phone:           "99112233",
		Service:         "haircut",
		Date:            "2026-09-10",
		Time:            "10:00",
		DurationMinutes: 60,
		Status:          models.StatusConfirmed,
	}
}

func TestEnqueueTask(t *testing.T) {
	w, db := setupWorker(t, newFakeSheets(), RetryPolicy{})
	ctx := context.Background()

	booking := workerBooking()
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, booking))

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.SyncTaskUpsert, pending[0].TaskType)
	assert.Equal(t, booking.ID, pending[0].BookingID)

	// задача также попала в локальную очередь
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, pending[0].ID, task.ID)
}

func TestEnqueueTask_Validation(t *testing.T) {
	w, _ := setupWorker(t, newFakeSheets(), RetryPolicy{})
	ctx := context.Background()

	assert.Error(t, w.EnqueueTask(ctx, "", workerBooking()))
	assert.Error(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, nil))
	assert.Error(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, &models.Booking{}))
}

func TestProcessTask_Upsert(t *testing.T) {
	sheets := newFakeSheets()
	w, db := setupWorker(t, sheets, RetryPolicy{})
	ctx := context.Background()

	booking := workerBooking()
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, booking))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	assert.Equal(t, []string{booking.ID}, sheets.appended)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "completed task is no longer pending")
}

func TestProcessTask_UpdateStatus(t *testing.T) {
	sheets := newFakeSheets()
	w, _ := setupWorker(t, sheets, RetryPolicy{})
	ctx := context.Background()

	booking := workerBooking()
	booking.Status = models.StatusCancelled
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpdateStatus, booking))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	assert.Equal(t, models.StatusCancelled, sheets.statuses[booking.ID])
}

func TestProcessTask_RetryThenFail(t *testing.T) {
	sheets := newFakeSheets()
	sheets.err = errors.New("sheets unavailable")
	w, db := setupWorker(t, sheets, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond})
	ctx := context.Background()

	booking := workerBooking()
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsert, booking))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)

	// первая неудача уходит в retry
	w.processTask(ctx, &task)
	time.Sleep(5 * time.Millisecond)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.SyncStatusRetry, pending[0].Status)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "sheets unavailable", pending[0].LastError)

	// вторая достигает лимита и помечается failed
	w.processTask(ctx, &pending[0])

	pending, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessTask_BadPayload(t *testing.T) {
	w, db := setupWorker(t, newFakeSheets(), RetryPolicy{})
	ctx := context.Background()

	task := models.SyncTask{
		TaskType:  models.SyncTaskUpsert,
		BookingID: "b-1",
		Payload:   "{not json",
		Status:    models.SyncStatusPending,
	}
	require.NoError(t, db.CreateSyncTask(ctx, &task))

	w.processTask(ctx, &task)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "undecodable task goes straight to failed")
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, time.Minute, p.Delay(10), "delay is clamped to MaxDelay")
	assert.Equal(t, 2*time.Second, p.Delay(0), "attempts below 1 behave like the first")
}
