package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"apptchat/internal/database"
	"apptchat/internal/llm"
	"apptchat/internal/models"
	"apptchat/internal/parse"
	"apptchat/internal/service"
)

// The closed set of engine operations the model may request. Anything
// else coming back from the provider is treated as a provider fault.
const (
	FnCheckAvailability   = "check_availability"
	FnCreateBooking       = "create_booking"
	FnCancelBooking       = "cancel_booking"
	FnListBookings        = "list_bookings"
	FnSuggestAlternatives = "suggest_alternatives"
)

func knownFunction(name string) bool {
	switch name {
	case FnCheckAvailability, FnCreateBooking, FnCancelBooking, FnListBookings, FnSuggestAlternatives:
		return true
	}
	return false
}

// FunctionSchema builds the fixed function declarations handed to the
// provider. The catalog is inlined into the service description so the
// model picks valid names.
func FunctionSchema(services []models.Service) []llm.Function {
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name)
	}
	serviceDesc := "Type of service. One of: " + strings.Join(names, ", ")

	dateSchema := &llm.Schema{Type: "string", Description: "Date in YYYY-MM-DD format"}
	timeSchema := &llm.Schema{Type: "string", Description: "Time in HH:MM format (24-hour)"}
	durationSchema := &llm.Schema{Type: "integer", Description: "Duration in minutes"}

	return []llm.Function{
		{
			Name:        FnCheckAvailability,
			Description: "Check if a time slot is available for booking",
			Parameters: &llm.Schema{
				Type: "object",
				Properties: map[string]*llm.Schema{
					"date":             dateSchema,
					"time":             timeSchema,
					"duration_minutes": durationSchema,
				},
				Required: []string{"date", "time"},
			},
		},
		{
			Name:        FnCreateBooking,
			Description: "Create a new booking appointment",
			Parameters: &llm.Schema{
				Type: "object",
				Properties: map[string]*llm.Schema{
					"user_id":          {Type: "string", Description: "User identifier"},
					"user_name":        {Type: "string", Description: "Customer's name"},
					"phone":            {Type: "string", Description: "Customer's phone number"},
					"service":          {Type: "string", Description: serviceDesc},
					"date":             dateSchema,
					"time":             timeSchema,
					"duration_minutes": durationSchema,
				},
				Required: []string{"user_name", "phone", "service", "date", "time"},
			},
		},
		{
			Name:        FnCancelBooking,
			Description: "Cancel an existing booking by id, or the user's booking at a given date and time, or their most recent booking",
			Parameters: &llm.Schema{
				Type: "object",
				Properties: map[string]*llm.Schema{
					"booking_id": {Type: "string", Description: "Booking id to cancel"},
					"date":       dateSchema,
					"time":       timeSchema,
				},
			},
		},
		{
			Name:        FnListBookings,
			Description: "List the user's bookings",
			Parameters: &llm.Schema{
				Type: "object",
				Properties: map[string]*llm.Schema{
					"date":   dateSchema,
					"status": {Type: "string", Description: "Filter by status: confirmed or cancelled"},
				},
			},
		},
		{
			Name:        FnSuggestAlternatives,
			Description: "Suggest alternative free time slots near a requested one",
			Parameters: &llm.Schema{
				Type: "object",
				Properties: map[string]*llm.Schema{
					"date":             dateSchema,
					"time":             timeSchema,
					"duration_minutes": durationSchema,
					"count":            {Type: "integer", Description: "Number of alternatives"},
				},
				Required: []string{"date", "time"},
			},
		},
	}
}

var errMissingArgument = errors.New("missing required argument")

// execute validates the call's arguments and runs the engine
// operation. Validation failures and engine errors become payload
// content for the model to phrase; the returned bool reports whether
// the engine was actually invoked.
func (a *Agent) execute(ctx context.Context, call *llm.FunctionCall, userID string) (map[string]any, bool) {
	switch call.Name {
	case FnCheckAvailability:
		return a.execCheckAvailability(ctx, call.Args)
	case FnCreateBooking:
		return a.execCreateBooking(ctx, call.Args, userID)
	case FnCancelBooking:
		return a.execCancelBooking(ctx, call.Args, userID)
	case FnListBookings:
		return a.execListBookings(ctx, call.Args, userID)
	case FnSuggestAlternatives:
		return a.execSuggestAlternatives(ctx, call.Args)
	default:
		// Callers filter unknown names before dispatch.
		return validationPayload(fmt.Sprintf("unknown function %q", call.Name)), false
	}
}

func (a *Agent) execCheckAvailability(ctx context.Context, args map[string]any) (map[string]any, bool) {
	date, start, err := a.slotArgs(args)
	if err != nil {
		return validationPayload(err.Error()), false
	}
	duration := argInt(args, "duration_minutes")

	availability, err := a.scheduler.CheckAvailability(ctx, date, start, duration)
	if err != nil {
		return errorPayload(err), true
	}

	payload := map[string]any{"available": availability.Available}
	if availability.Conflicting != nil {
		payload["conflicting_booking"] = availability.Conflicting
	}
	return payload, true
}

func (a *Agent) execCreateBooking(ctx context.Context, args map[string]any, userID string) (map[string]any, bool) {
	for _, key := range []string{"user_name", "phone", "service"} {
		if argString(args, key) == "" {
			return validationPayload(fmt.Errorf("%w: %s", errMissingArgument, key).Error()), false
		}
	}
	date, start, err := a.slotArgs(args)
	if err != nil {
		return validationPayload(err.Error()), false
	}

	req := models.Booking{
		UserID:          userID,
		UserName:        argString(args, "user_name"),
		Phone:           argString(args, "phone"),
		Service:         argString(args, "service"),
		Date:            date,
		Time:            start,
		DurationMinutes: argInt(args, "duration_minutes"),
	}
	if id := argString(args, "user_id"); id != "" {
		req.UserID = id
	}

	booking, err := a.scheduler.CreateBooking(ctx, req)
	if err != nil {
		if conflict, ok := database.AsConflict(err); ok {
			payload := map[string]any{
				"success":             false,
				"error":               "time_conflict",
				"conflicting_booking": conflict.Conflicting,
			}
			duration := req.DurationMinutes
			if duration <= 0 {
				if d, ok := a.scheduler.ServiceDuration(req.Service); ok {
					duration = d
				}
			}
			if alternatives, altErr := a.scheduler.SuggestAlternatives(ctx, date, start, duration, 3); altErr == nil {
				payload["alternatives"] = alternatives
			}
			return payload, true
		}
		return errorPayload(err), true
	}

	return map[string]any{"success": true, "booking": booking}, true
}

func (a *Agent) execCancelBooking(ctx context.Context, args map[string]any, userID string) (map[string]any, bool) {
	bookingID := argString(args, "booking_id")
	date := argString(args, "date")
	start := argString(args, "time")
	if date != "" {
		if normalized, ok := parse.Date(date, a.now()); ok {
			date = normalized
		}
	}

	booking, err := a.scheduler.CancelBooking(ctx, bookingID, userID, date, start)
	if err != nil {
		return errorPayload(err), true
	}
	return map[string]any{"success": true, "booking": booking}, true
}

func (a *Agent) execListBookings(ctx context.Context, args map[string]any, userID string) (map[string]any, bool) {
	filter := models.BookingFilter{
		UserID: userID,
		Status: argString(args, "status"),
	}
	if date := argString(args, "date"); date != "" {
		if normalized, ok := parse.Date(date, a.now()); ok {
			filter.Date = normalized
		} else {
			return validationPayload(fmt.Sprintf("unparseable date %q", date)), false
		}
	}

	bookings, err := a.scheduler.ListBookings(ctx, filter)
	if err != nil {
		return errorPayload(err), true
	}
	return map[string]any{"bookings": bookings, "count": len(bookings)}, true
}

func (a *Agent) execSuggestAlternatives(ctx context.Context, args map[string]any) (map[string]any, bool) {
	date, start, err := a.slotArgs(args)
	if err != nil {
		return validationPayload(err.Error()), false
	}
	count := argInt(args, "count")
	if count <= 0 {
		count = 3
	}

	alternatives, err := a.scheduler.SuggestAlternatives(ctx, date, start, argInt(args, "duration_minutes"), count)
	if err != nil {
		return errorPayload(err), true
	}
	return map[string]any{"alternatives": alternatives, "count": len(alternatives)}, true
}

// slotArgs extracts and normalizes the date/time pair every slot
// operation requires. Relative dates ("tomorrow") are resolved here;
// the engine never sees them.
func (a *Agent) slotArgs(args map[string]any) (string, string, error) {
	rawDate := argString(args, "date")
	if rawDate == "" {
		return "", "", fmt.Errorf("%w: date", errMissingArgument)
	}
	date, ok := parse.Date(rawDate, a.now())
	if !ok {
		return "", "", fmt.Errorf("unparseable date %q", rawDate)
	}

	rawTime := argString(args, "time")
	if rawTime == "" {
		return "", "", fmt.Errorf("%w: time", errMissingArgument)
	}
	start, ok := parse.Time(rawTime)
	if !ok {
		return "", "", fmt.Errorf("unparseable time %q", rawTime)
	}

	return date, start, nil
}

func validationPayload(detail string) map[string]any {
	return map[string]any{
		"success": false,
		"error":   "validation_error",
		"detail":  detail,
	}
}

// errorPayload renders engine errors as machine-readable function
// results. Store internals never leak: unexpected errors collapse to a
// generic marker.
func errorPayload(err error) map[string]any {
	if ve, ok := service.AsValidation(err); ok {
		return validationPayload(ve.Error())
	}
	if conflict, ok := database.AsConflict(err); ok {
		return map[string]any{
			"success":             false,
			"error":               "time_conflict",
			"conflicting_booking": conflict.Conflicting,
		}
	}
	if errors.Is(err, database.ErrBookingNotFound) {
		return map[string]any{"success": false, "error": "booking_not_found"}
	}
	return map[string]any{"success": false, "error": "internal_error"}
}

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func argInt(args map[string]any, key string) int {
	if args == nil {
		return 0
	}
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

// now is overridable in tests.
func (a *Agent) now() time.Time {
	if a.clock != nil {
		return a.clock()
	}
	return time.Now()
}
