package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apptchat/internal/config"
	"apptchat/internal/database"
	"apptchat/internal/events"
	"apptchat/internal/llm"
	"apptchat/internal/models"
	"apptchat/internal/repository"
	"apptchat/internal/service"
)

// scriptedProvider replays a fixed sequence of completions or errors.
type scriptedProvider struct {
	steps []scriptStep
	calls int
}

type scriptStep struct {
	completion *llm.Completion
	err        error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, _ llm.Request) (*llm.Completion, error) {
	if p.calls >= len(p.steps) {
		return nil, &llm.ProviderError{Provider: "scripted", Err: errors.New("script exhausted")}
	}
	step := p.steps[p.calls]
	p.calls++
	return step.completion, step.err
}

func textStep(text string) scriptStep {
	return scriptStep{completion: &llm.Completion{Text: text}}
}

func callStep(name string, args map[string]any) scriptStep {
	return scriptStep{completion: &llm.Completion{Call: &llm.FunctionCall{Name: name, Args: args}}}
}

func errStep() scriptStep {
	return scriptStep{err: &llm.ProviderError{Provider: "scripted", Err: errors.New("unavailable")}}
}

func testConfig() *config.Config {
	return &config.Config{
		Business: config.BusinessConfig{
			StartHour:       9,
			EndHour:         18,
			SlotStepMinutes: 30,
			SearchDays:      7,
		},
		Agent: config.AgentConfig{
			MaxIterations:   5,
			MaxHistoryTurns: 40,
		},
		LLM: config.LLMConfig{TimeoutSeconds: 5},
	}
}

func setupAgent(t *testing.T, provider llm.Provider) (*Agent, *service.BookingService, *repository.MemorySessionRepository) {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	services := []models.Service{
		{Name: "haircut", Label: "Үс засуулах", DurationMinutes: 60},
		{Name: "manicure", Label: "Маникюр", DurationMinutes: 60},
	}
	scheduler := service.NewBookingService(db, events.NewEventBus(), nil, testConfig().Business, services, &logger)
	sessions := repository.NewMemorySessionRepository(time.Hour)

	a := New(provider, scheduler, sessions, testConfig(), logger)
	return a, scheduler, sessions
}

func TestProcessMessage_PlainReply(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptStep{textStep("Hello! How can I help?")}}
	a, _, sessions := setupAgent(t, provider)

	reply, err := a.ProcessMessage(context.Background(), "s1", "u1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", reply)

	session, err := sessions.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Len(t, session.Turns, 2)
	assert.Equal(t, models.RoleUser, session.Turns[0].Role)
	assert.Equal(t, models.RoleAssistant, session.Turns[1].Role)
}

func TestProcessMessage_FunctionCallThenReply(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptStep{
		callStep(FnCreateBooking, map[string]any{
			"user_name": "Bat",
			"phone":     "99112233",
			"service":   "haircut",
			"date":      "2026-09-10",
			"time":      "10:00",
		}),
		textStep("Booked you in for 10:00!"),
	}}
	a, scheduler, sessions := setupAgent(t, provider)

	reply, err := a.ProcessMessage(context.Background(), "s1", "u1", "book me a haircut tomorrow at 10")
	require.NoError(t, err)
	assert.Equal(t, "Booked you in for 10:00!", reply)

	// The engine really created the booking.
	bookings, err := scheduler.ListBookings(context.Background(), models.BookingFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "10:00", bookings[0].Time)

	// История: user, вызов, результат, ответ.
	session, err := sessions.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, session.Turns, 4)
	assert.Equal(t, FnCreateBooking, session.Turns[1].Function)
	assert.Equal(t, models.RoleFunction, session.Turns[2].Role)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(session.Turns[2].Content), &result))
	assert.Equal(t, true, result["success"])
}

func TestProcessMessage_MissingArgumentSkipsEngine(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptStep{
		callStep(FnCreateBooking, map[string]any{
			"user_name": "Bat",
			"service":   "haircut",
			"date":      "2026-09-10",
			"time":      "10:00",
			// phone missing
		}),
		textStep("What's your phone number?"),
	}}
	a, scheduler, sessions := setupAgent(t, provider)

	reply, err := a.ProcessMessage(context.Background(), "s1", "u1", "book a haircut")
	require.NoError(t, err)
	assert.Equal(t, "What's your phone number?", reply)

	// Nothing reached the ledger.
	bookings, err := scheduler.ListBookings(context.Background(), models.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, bookings)

	session, err := sessions.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(session.Turns[2].Content), &result))
	assert.Equal(t, "validation_error", result["error"])
}

func TestProcessMessage_ConflictCarriesAlternatives(t *testing.T) {
	args := map[string]any{
		"user_name": "Bat",
		"phone":     "99112233",
		"service":   "haircut",
		"date":      "2026-09-10",
		"time":      "10:00",
	}
	provider := &scriptedProvider{steps: []scriptStep{
		callStep(FnCreateBooking, args),
		textStep("Done!"),
		callStep(FnCreateBooking, args),
		textStep("Taken, how about 11:00?"),
	}}
	a, _, sessions := setupAgent(t, provider)
	ctx := context.Background()

	_, err := a.ProcessMessage(ctx, "s1", "u1", "book a haircut at 10")
	require.NoError(t, err)

	reply, err := a.ProcessMessage(ctx, "s2", "u2", "book a haircut at 10")
	require.NoError(t, err)
	assert.Equal(t, "Taken, how about 11:00?", reply)

	session, err := sessions.GetSession(ctx, "s2")
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(session.Turns[2].Content), &result))
	assert.Equal(t, "time_conflict", result["error"])
	alternatives, ok := result["alternatives"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, alternatives)
	first := alternatives[0].(map[string]any)
	assert.Equal(t, "11:00", first["time"])
}

func TestProcessMessage_ProviderFailureRetriesOnce(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptStep{
		errStep(),
		textStep("Recovered."),
	}}
	a, _, _ := setupAgent(t, provider)

	reply, err := a.ProcessMessage(context.Background(), "s1", "u1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Recovered.", reply)
	assert.Equal(t, 2, provider.calls)
}

func TestProcessMessage_DoubleFailureLeavesSessionUntouched(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptStep{
		textStep("First answer."),
		errStep(),
		errStep(),
	}}
	a, _, sessions := setupAgent(t, provider)
	ctx := context.Background()

	_, err := a.ProcessMessage(ctx, "s1", "u1", "hello")
	require.NoError(t, err)

	reply, err := a.ProcessMessage(ctx, "s1", "u1", "and now?")
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, reply)

	// The failed turn must not be persisted.
	session, err := sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, session.Turns, 2)
	assert.Equal(t, "hello", session.Turns[0].Content)
}

func TestProcessMessage_IterationBudget(t *testing.T) {
	steps := make([]scriptStep, 0, 6)
	for i := 0; i < 6; i++ {
		steps = append(steps, callStep(FnCheckAvailability, map[string]any{
			"date": "2026-09-10",
			"time": "10:00",
		}))
	}
	provider := &scriptedProvider{steps: steps}
	a, _, _ := setupAgent(t, provider)

	reply, err := a.ProcessMessage(context.Background(), "s1", "u1", "is 10:00 free?")
	require.NoError(t, err)
	assert.Equal(t, 5, provider.calls, "loop must stop at the iteration budget")
	assert.Equal(t, "That time slot is free.", reply)
}

func TestProcessMessage_UnknownFunctionFallsBack(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptStep{
		callStep("delete_everything", nil),
		callStep("delete_everything", nil),
	}}
	a, _, _ := setupAgent(t, provider)

	reply, err := a.ProcessMessage(context.Background(), "s1", "u1", "hi")
	require.NoError(t, err)
	assert.Equal(t, fallbackReply, reply)
}

func TestProcessMessage_RelativeDateNormalized(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptStep{
		callStep(FnCreateBooking, map[string]any{
			"user_name": "Bat",
			"phone":     "99112233",
			"service":   "haircut",
			"date":      "tomorrow",
			"time":      "10:00",
		}),
		textStep("Booked for tomorrow."),
	}}
	a, scheduler, _ := setupAgent(t, provider)
	now := time.Date(2026, 9, 9, 12, 0, 0, 0, time.UTC)
	a.clock = func() time.Time { return now }

	_, err := a.ProcessMessage(context.Background(), "s1", "u1", "book a haircut tomorrow at 10")
	require.NoError(t, err)

	bookings, err := scheduler.ListBookings(context.Background(), models.BookingFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "2026-09-10", bookings[0].Date)
}

func TestClearHistory(t *testing.T) {
	provider := &scriptedProvider{steps: []scriptStep{textStep("Hi!")}}
	a, _, sessions := setupAgent(t, provider)
	ctx := context.Background()

	_, err := a.ProcessMessage(ctx, "s1", "u1", "hello")
	require.NoError(t, err)

	require.NoError(t, a.ClearHistory(ctx, "s1"))

	session, err := sessions.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestFunctionSchema(t *testing.T) {
	schema := FunctionSchema([]models.Service{{Name: "haircut", DurationMinutes: 60}})
	require.Len(t, schema, 5)

	names := make(map[string]llm.Function, len(schema))
	for _, fn := range schema {
		names[fn.Name] = fn
	}
	require.Contains(t, names, FnCreateBooking)
	assert.Contains(t, names[FnCreateBooking].Parameters.Required, "phone")
	assert.Contains(t, names[FnCreateBooking].Parameters.Properties["service"].Description, "haircut")
}
