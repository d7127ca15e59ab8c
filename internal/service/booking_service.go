package service

import (
	"context"
	"strings"
	"time"

	"apptchat/internal/config"
	"apptchat/internal/domain"
	"apptchat/internal/events"
	"apptchat/internal/models"
	"apptchat/internal/parse"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingService is the scheduling engine: it validates requests
// against the service catalog and business hours, guards the ledger
// against double booking and searches for alternative slots.
type BookingService struct {
	repo       domain.Repository
	eventBus   domain.EventPublisher
	syncWorker domain.SyncWorker
	business   config.BusinessConfig
	services   []models.Service
	catalog    map[string]models.Service
	logger     *zerolog.Logger
}

func NewBookingService(repo domain.Repository, eventBus domain.EventPublisher, syncWorker domain.SyncWorker, business config.BusinessConfig, services []models.Service, logger *zerolog.Logger) *BookingService {
	catalog := make(map[string]models.Service, len(services))
	for _, svc := range services {
		catalog[strings.ToLower(svc.Name)] = svc
	}
	if business.SlotStepMinutes <= 0 {
		business.SlotStepMinutes = models.DefaultSlotStepMinutes
	}
	if business.SearchDays <= 0 {
		business.SearchDays = models.DefaultSearchDays
	}
	return &BookingService{
		repo:       repo,
		eventBus:   eventBus,
		syncWorker: syncWorker,
		business:   business,
		services:   services,
		catalog:    catalog,
		logger:     logger,
	}
}

// Services returns the catalog in config order.
func (s *BookingService) Services() []models.Service {
	return s.services
}

// ServiceDuration returns the default duration for a catalog service.
func (s *BookingService) ServiceDuration(service string) (int, bool) {
	svc, ok := s.catalog[strings.ToLower(strings.TrimSpace(service))]
	if !ok {
		return 0, false
	}
	return svc.DurationMinutes, true
}

// CheckAvailability reports whether [start, start+duration) on date is
// free of confirmed bookings.
func (s *BookingService) CheckAvailability(ctx context.Context, date, start string, durationMinutes int) (*models.Availability, error) {
	if err := validateSlotFormat(date, start); err != nil {
		return nil, err
	}
	if durationMinutes <= 0 {
		durationMinutes = models.DefaultDurationMinutes
	}

	conflict, err := s.repo.FindConflict(ctx, date, start, durationMinutes)
	if err != nil {
		return nil, err
	}
	return &models.Availability{Available: conflict == nil, Conflicting: conflict}, nil
}

// SuggestAlternatives returns up to maxSuggestions free slots, scanning
// forward from the requested time in step increments through business
// hours, then subsequent days from opening, up to the configured day
// horizon. Results are strictly chronological; an empty slice means
// nothing was free within the horizon.
func (s *BookingService) SuggestAlternatives(ctx context.Context, date, start string, durationMinutes, maxSuggestions int) ([]models.Slot, error) {
	if err := validateSlotFormat(date, start); err != nil {
		return nil, err
	}
	if durationMinutes <= 0 {
		durationMinutes = models.DefaultDurationMinutes
	}
	if maxSuggestions <= 0 {
		maxSuggestions = 3
	}

	day, _ := time.Parse(models.DateLayout, date)
	startMin, err := parse.MinutesOfDay(start)
	if err != nil {
		return nil, invalidf("time", "%v", err)
	}

	openMin := s.business.StartHour * 60
	closeMin := s.business.EndHour * 60
	step := s.business.SlotStepMinutes

	suggestions := make([]models.Slot, 0, maxSuggestions)
	for dayOffset := 0; dayOffset <= s.business.SearchDays; dayOffset++ {
		candidate := openMin
		if dayOffset == 0 {
			// Same day: start at the next step boundary after the
			// requested time.
			candidate = startMin + step
			if rem := candidate % step; rem != 0 {
				candidate += step - rem
			}
			if candidate < openMin {
				candidate = openMin
			}
		}

		dateStr := day.AddDate(0, 0, dayOffset).Format(models.DateLayout)
		for ; candidate+durationMinutes <= closeMin; candidate += step {
			conflict, err := s.repo.FindConflict(ctx, dateStr, parse.ClockFromMinutes(candidate), durationMinutes)
			if err != nil {
				return nil, err
			}
			if conflict != nil {
				continue
			}
			suggestions = append(suggestions, models.Slot{Date: dateStr, Time: parse.ClockFromMinutes(candidate)})
			if len(suggestions) >= maxSuggestions {
				return suggestions, nil
			}
		}
	}
	return suggestions, nil
}

// CreateBooking validates the request and inserts the booking inside
// one transaction with the availability re-check. On a taken slot the
// *database.ConflictError carries the conflicting booking.
func (s *BookingService) CreateBooking(ctx context.Context, req models.Booking) (*models.Booking, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, invalidf("user_id", "required")
	}
	if strings.TrimSpace(req.UserName) == "" {
		return nil, invalidf("user_name", "required")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, invalidf("phone", "required")
	}

	svc, ok := s.catalog[strings.ToLower(strings.TrimSpace(req.Service))]
	if !ok {
		return nil, invalidf("service", "unknown service %q", req.Service)
	}

	if err := validateSlotFormat(req.Date, req.Time); err != nil {
		return nil, err
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = svc.DurationMinutes
	}

	if err := s.validateBusinessWindow(req.Time, duration); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		UserName:        req.UserName,
		Phone:           req.Phone,
		Service:         svc.Name,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: duration,
	}

	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingCreated, booking)
	s.enqueueSync(ctx, models.SyncTaskUpsert, booking)

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("service", booking.Service).
		Str("date", booking.Date).
		Str("time", booking.Time).
		Msg("booking created")

	return booking, nil
}

// CancelBooking cancels by id when given, otherwise by the user's
// booking at an exact slot, otherwise the user's most recent confirmed
// booking. Cancelling an already cancelled booking succeeds.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID, date, start string) (*models.Booking, error) {
	id := strings.TrimSpace(bookingID)
	if id == "" {
		if strings.TrimSpace(userID) == "" {
			return nil, invalidf("booking_id", "booking_id or user_id is required")
		}

		var (
			target *models.Booking
			err    error
		)
		if date != "" && start != "" {
			if err := validateSlotFormat(date, start); err != nil {
				return nil, err
			}
			target, err = s.repo.FindUserBookingAt(ctx, userID, date, start)
		} else {
			target, err = s.repo.LatestConfirmedByUser(ctx, userID)
		}
		if err != nil {
			return nil, err
		}
		id = target.ID
	}

	booking, err := s.repo.CancelBooking(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingCancelled, booking)
	s.enqueueSync(ctx, models.SyncTaskUpdateStatus, booking)

	s.logger.Info().Str("booking_id", booking.ID).Msg("booking cancelled")
	return booking, nil
}

func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	if filter.Date != "" {
		if _, err := time.Parse(models.DateLayout, filter.Date); err != nil {
			return nil, invalidf("date", "expected YYYY-MM-DD, got %q", filter.Date)
		}
	}
	return s.repo.ListBookings(ctx, filter)
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) validateBusinessWindow(start string, durationMinutes int) error {
	startMin, err := parse.MinutesOfDay(start)
	if err != nil {
		return invalidf("time", "%v", err)
	}
	openMin := s.business.StartHour * 60
	closeMin := s.business.EndHour * 60
	if startMin < openMin || startMin >= closeMin {
		return invalidf("time", "outside business hours %02d:00-%02d:00", s.business.StartHour, s.business.EndHour)
	}
	if startMin+durationMinutes > closeMin {
		return invalidf("time", "appointment would end after closing at %02d:00", s.business.EndHour)
	}
	return nil
}

func validateSlotFormat(date, start string) error {
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return invalidf("date", "expected YYYY-MM-DD, got %q", date)
	}
	if _, err := time.Parse(models.TimeLayout, start); err != nil {
		return invalidf("time", "expected HH:MM, got %q", start)
	}
	return nil
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		UserName:  booking.UserName,
		Service:   booking.Service,
		Date:      booking.Date,
		Time:      booking.Time,
		Status:    booking.Status,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, taskType string, booking *models.Booking) {
	if s.syncWorker == nil {
		return
	}
	if err := s.syncWorker.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
