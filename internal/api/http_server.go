package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"apptchat/internal/config"
	"apptchat/internal/database"
	"apptchat/internal/domain"
	"apptchat/internal/export"
	"apptchat/internal/metrics"
	"apptchat/internal/models"
	"apptchat/internal/service"
)

// HTTPServer exposes the chat and booking API.
type HTTPServer struct {
	cfg        config.APIConfig
	scheduler  domain.Scheduler
	dispatcher domain.Dispatcher
	exporter   *export.Exporter
	server     *http.Server
	auth       *HTTPAuth
	logger     zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, scheduler domain.Scheduler, dispatcher domain.Dispatcher, exporter *export.Exporter, logger zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{
		cfg:        cfg,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		exporter:   exporter,
		logger:     logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/chat", srv.handleChat)
	mux.HandleFunc("/api/v1/chat/", srv.handleChatSession)
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBooking)
	mux.HandleFunc("/api/v1/availability", srv.handleAvailability)
	mux.HandleFunc("/api/v1/export", srv.handleExport)
	mux.HandleFunc("/health", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type request struct {
		SessionID string `json:"session_id"`
		UserID    string `json:"user_id"`
		Message   string `json:"message"`
	}

	var body request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	reply, err := s.dispatcher.ProcessMessage(r.Context(), body.SessionID, body.UserID, body.Message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *HTTPServer) handleChatSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sessionID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/v1/chat/"))
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	if err := s.dispatcher.ClearHistory(r.Context(), sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listBookings(w, r)
	case http.MethodPost:
		s.createBooking(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) listBookings(w http.ResponseWriter, r *http.Request) {
	filter := models.BookingFilter{
		UserID: strings.TrimSpace(r.URL.Query().Get("user_id")),
		Date:   strings.TrimSpace(r.URL.Query().Get("date")),
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
	}

	bookings, err := s.scheduler.ListBookings(r.Context(), filter)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings, "count": len(bookings)})
}

func (s *HTTPServer) createBooking(w http.ResponseWriter, r *http.Request) {
	var req models.Booking
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	booking, err := s.scheduler.CreateBooking(r.Context(), req)
	if err != nil {
		if conflict, ok := database.AsConflict(err); ok {
			duration := req.DurationMinutes
			if duration <= 0 {
				if d, ok := s.scheduler.ServiceDuration(req.Service); ok {
					duration = d
				}
			}
			payload := map[string]any{
				"error":               "time_conflict",
				"conflicting_booking": conflict.Conflicting,
			}
			if alternatives, altErr := s.scheduler.SuggestAlternatives(r.Context(), req.Date, req.Time, duration, 3); altErr == nil {
				payload["alternatives"] = alternatives
			}
			writeJSON(w, http.StatusConflict, payload)
			return
		}
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleBooking(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/v1/bookings/"))
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "booking id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		booking, err := s.scheduler.GetBooking(r.Context(), id)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)
	case http.MethodDelete:
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		booking, err := s.scheduler.CancelBooking(r.Context(), id, userID, "", "")
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	start := strings.TrimSpace(q.Get("time"))
	if date == "" || start == "" {
		writeError(w, http.StatusBadRequest, "date and time are required")
		return
	}
	duration := 0
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid duration_minutes")
			return
		}
		duration = n
	}

	availability, err := s.scheduler.CheckAvailability(r.Context(), date, start, duration)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := map[string]any{"available": availability.Available}
	if availability.Conflicting != nil {
		resp["conflicting_booking"] = availability.Conflicting
		if alternatives, altErr := s.scheduler.SuggestAlternatives(r.Context(), date, start, duration, 3); altErr == nil {
			resp["alternatives"] = alternatives
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	q := r.URL.Query()
	startDate, err := time.Parse(models.DateLayout, strings.TrimSpace(q.Get("start")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start date; expected YYYY-MM-DD")
		return
	}
	endDate, err := time.Parse(models.DateLayout, strings.TrimSpace(q.Get("end")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end date; expected YYYY-MM-DD")
		return
	}
	if endDate.Before(startDate) {
		writeError(w, http.StatusBadRequest, "end date before start date")
		return
	}

	filePath, err := s.exporter.ExportBookings(r.Context(), startDate, endDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, filePath)
}

// writeEngineError maps engine errors onto HTTP statuses.
func (s *HTTPServer) writeEngineError(w http.ResponseWriter, err error) {
	if ve, ok := service.AsValidation(err); ok {
		writeError(w, http.StatusBadRequest, ve.Error())
		return
	}
	if errors.Is(err, database.ErrBookingNotFound) {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	s.logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
