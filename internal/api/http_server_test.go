package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apptchat/internal/config"
	"apptchat/internal/database"
	"apptchat/internal/events"
	"apptchat/internal/models"
	"apptchat/internal/service"
)

type fakeDispatcher struct {
	reply   string
	err     error
	cleared []string
}

func (f *fakeDispatcher) ProcessMessage(ctx context.Context, sessionID, userID, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeDispatcher) ClearHistory(ctx context.Context, sessionID string) error {
	f.cleared = append(f.cleared, sessionID)
	return nil
}

var apiTestServices = []models.Service{
	{Name: "haircut", Label: "Үс засуулах", DurationMinutes: 60},
	{Name: "manicure", Label: "Маникюр", DurationMinutes: 60},
}

func setupServer(t *testing.T, cfg config.APIConfig) (http.Handler, *service.BookingService, *fakeDispatcher) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	business := config.BusinessConfig{StartHour: 9, EndHour: 18, SlotStepMinutes: 30, SearchDays: 7}
	scheduler := service.NewBookingService(db, events.NewEventBus(), nil, business, apiTestServices, &logger)
	dispatcher := &fakeDispatcher{reply: "Hello!"}

	srv := NewHTTPServer(cfg, scheduler, dispatcher, nil, logger)
	return srv.server.Handler, scheduler, dispatcher
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestChatEndpoint(t *testing.T) {
	handler, _, _ := setupServer(t, config.APIConfig{})

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/chat", map[string]string{
		"session_id": "s1",
		"user_id":    "u1",
		"message":    "hi",
	}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello!", decodeBody(t, rec)["reply"])
}

func TestChatEndpoint_Validation(t *testing.T) {
	handler, _, _ := setupServer(t, config.APIConfig{})

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/chat", map[string]string{"user_id": "u1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/api/v1/chat", map[string]string{"message": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewBufferString("{not json"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearChatSession(t *testing.T) {
	handler, _, dispatcher := setupServer(t, config.APIConfig{})

	rec := doRequest(t, handler, http.MethodDelete, "/api/v1/chat/s1", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"s1"}, dispatcher.cleared)
}

func TestBookingLifecycle(t *testing.T) {
	handler, _, _ := setupServer(t, config.APIConfig{})

	create := map[string]any{
		"user_id":   "u1",
		"user_name": "Bat",
		"phone":     "99112233",
		"service":   "haircut",
		"date":      "2026-09-10",
		"time":      "10:00",
	}

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/bookings", create, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, models.StatusConfirmed, created["status"])

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/bookings?user_id=u1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/bookings/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10:00", decodeBody(t, rec)["time"])

	rec = doRequest(t, handler, http.MethodDelete, "/api/v1/bookings/"+id+"?user_id=u1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusCancelled, decodeBody(t, rec)["status"])
}

func TestCreateBooking_Conflict(t *testing.T) {
	handler, _, _ := setupServer(t, config.APIConfig{})

	create := map[string]any{
		"user_id":   "u1",
		"user_name": "Bat",
		"phone":     "99112233",
		"service":   "haircut",
		"date":      "2026-09-10",
		"time":      "10:00",
	}
	rec := doRequest(t, handler, http.MethodPost, "/api/v1/bookings", create, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	create["user_id"] = "u2"
	create["time"] = "10:30"
	rec = doRequest(t, handler, http.MethodPost, "/api/v1/bookings", create, nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	payload := decodeBody(t, rec)
	assert.Equal(t, "time_conflict", payload["error"])
	assert.NotNil(t, payload["conflicting_booking"])
	alternatives, ok := payload["alternatives"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, alternatives)
	first := alternatives[0].(map[string]any)
	assert.Equal(t, "11:00", first["time"])
}

func TestCreateBooking_ValidationError(t *testing.T) {
	handler, _, _ := setupServer(t, config.APIConfig{})

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/bookings", map[string]any{
		"user_id":   "u1",
		"user_name": "Bat",
		"phone":     "99112233",
		"service":   "haircut",
		"date":      "2026-09-10",
		"time":      "26:00",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBooking_NotFound(t *testing.T) {
	handler, _, _ := setupServer(t, config.APIConfig{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/bookings/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityEndpoint(t *testing.T) {
	handler, scheduler, _ := setupServer(t, config.APIConfig{})
	ctx := context.Background()

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/availability?date=2026-09-10&time=10:00", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["available"])

	_, err := scheduler.CreateBooking(ctx, models.Booking{
		UserID: "u1", UserName: "Bat", Phone: "99112233",
		Service: "haircut", Date: "2026-09-10", Time: "10:00",
	})
	require.NoError(t, err)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/availability?date=2026-09-10&time=10:00&duration_minutes=60", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, false, payload["available"])
	assert.NotNil(t, payload["conflicting_booking"])
	assert.NotEmpty(t, payload["alternatives"])

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/availability?date=2026-09-10", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func authConfig() config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "chat-key", Name: "chat client", Permissions: []string{PermChat}},
				{Key: "admin-key", Name: "admin", Permissions: nil},
			},
		},
	}
}

func TestAuth(t *testing.T) {
	handler, _, _ := setupServer(t, authConfig())

	// без ключа
	rec := doRequest(t, handler, http.MethodGet, "/api/v1/bookings", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/api/v1/bookings", nil, map[string]string{"x-api-key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// ключ без нужного права
	rec = doRequest(t, handler, http.MethodGet, "/api/v1/bookings", nil, map[string]string{"x-api-key": "chat-key"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/api/v1/chat", map[string]string{
		"user_id": "u1", "message": "hi",
	}, map[string]string{"x-api-key": "chat-key"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// пустой список прав — allow-all
	rec = doRequest(t, handler, http.MethodGet, "/api/v1/bookings", nil, map[string]string{"x-api-key": "admin-key"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthBypassesAuth(t *testing.T) {
	handler, _, _ := setupServer(t, authConfig())

	rec := doRequest(t, handler, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := config.APIConfig{
		RateLimit: config.APIRateLimitConfig{RPS: 0.01, Burst: 2},
	}
	handler, _, _ := setupServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := doRequest(t, handler, http.MethodGet, "/api/v1/bookings", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("request %d within burst", i+1))
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/bookings", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
