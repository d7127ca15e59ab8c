package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"apptchat/internal/config"
	"apptchat/internal/domain"
	"apptchat/internal/llm"
	"apptchat/internal/metrics"
	"apptchat/internal/models"
)

// Agent runs the bounded conversation loop: it feeds the history to
// the provider, executes the function calls the model requests, and
// returns exactly one reply per user message. Session state is only
// persisted after a successful exchange, so a failed turn leaves the
// history as it was.
type Agent struct {
	provider  llm.Provider
	scheduler domain.Scheduler
	sessions  domain.SessionRepository
	logger    zerolog.Logger

	business config.BusinessConfig
	services []models.Service

	maxIterations   int
	maxHistoryTurns int
	callTimeout     time.Duration

	functions []llm.Function

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	clock func() time.Time // nil means time.Now
}

func New(provider llm.Provider, scheduler domain.Scheduler, sessions domain.SessionRepository, cfg *config.Config, logger zerolog.Logger) *Agent {
	maxIterations := cfg.Agent.MaxIterations
	if maxIterations <= 0 {
		maxIterations = models.DefaultMaxIterations
	}
	maxHistory := cfg.Agent.MaxHistoryTurns
	if maxHistory <= 0 {
		maxHistory = models.DefaultMaxHistoryTurns
	}
	callTimeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}

	return &Agent{
		provider:        provider,
		scheduler:       scheduler,
		sessions:        sessions,
		logger:          logger,
		business:        cfg.Business,
		services:        scheduler.Services(),
		maxIterations:   maxIterations,
		maxHistoryTurns: maxHistory,
		callTimeout:     callTimeout,
		functions:       FunctionSchema(scheduler.Services()),
		locks:           make(map[string]*sync.Mutex),
	}
}

// ProcessMessage runs one full dispatch cycle for the user's message.
// The returned string is always a user-facing reply; transport errors
// degrade to a static apology rather than surfacing.
func (a *Agent) ProcessMessage(ctx context.Context, sessionID, userID, text string) (string, error) {
	if sessionID == "" {
		sessionID = userID
	}
	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	metrics.IncChatMessage("agent")

	stored, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		a.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session")
		return fallbackReply, nil
	}

	work := cloneSession(stored, sessionID, userID)
	work.Append(models.Turn{Role: models.RoleUser, Content: text})

	req := llm.Request{
		System:    systemPrompt(a.business, a.services, a.now()),
		Functions: a.functions,
	}

	var lastResult *functionResult
	providerRetried := false

	for iteration := 0; iteration < a.maxIterations; iteration++ {
		req.Turns = work.Turns
		completion, err := a.complete(ctx, req)
		if err != nil {
			if !providerRetried {
				providerRetried = true
				a.logger.Warn().Err(err).Str("session_id", sessionID).Msg("provider call failed, retrying once")
				iteration--
				continue
			}
			a.logger.Error().Err(err).Str("session_id", sessionID).Msg("provider unavailable, returning fallback")
			return fallbackReply, nil
		}

		if completion.Call == nil {
			reply := strings.TrimSpace(completion.Text)
			if reply == "" {
				reply = a.summaryReply(lastResult)
			}
			work.Append(models.Turn{Role: models.RoleAssistant, Content: reply})
			a.persist(ctx, work)
			return reply, nil
		}

		call := completion.Call
		if !knownFunction(call.Name) {
			if !providerRetried {
				providerRetried = true
				a.logger.Warn().Str("function", call.Name).Str("session_id", sessionID).Msg("model requested unknown function, retrying once")
				iteration--
				continue
			}
			a.logger.Error().Str("function", call.Name).Str("session_id", sessionID).Msg("model insists on unknown function, returning fallback")
			return fallbackReply, nil
		}

		args, err := json.Marshal(call.Args)
		if err != nil {
			args = []byte("{}")
		}
		work.Append(models.Turn{Role: models.RoleAssistant, Function: call.Name, Args: args})

		payload, engineInvoked := a.execute(ctx, call, userID)
		outcome := payloadOutcome(payload, engineInvoked)
		metrics.IncFunctionCall(call.Name, outcome)
		a.logger.Debug().
			Str("session_id", sessionID).
			Str("function", call.Name).
			Str("outcome", outcome).
			Msg("function call executed")

		content, err := json.Marshal(payload)
		if err != nil {
			content = []byte(`{"success":false,"error":"internal_error"}`)
		}
		work.Append(models.Turn{Role: models.RoleFunction, Function: call.Name, Content: string(content)})
		lastResult = &functionResult{name: call.Name, payload: payload}
	}

	// Бюджет итераций исчерпан: отвечаем сами по последнему результату.
	reply := a.summaryReply(lastResult)
	work.Append(models.Turn{Role: models.RoleAssistant, Content: reply})
	a.persist(ctx, work)
	return reply, nil
}

// ClearHistory drops the stored conversation for a session.
func (a *Agent) ClearHistory(ctx context.Context, sessionID string) error {
	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return a.sessions.ClearSession(ctx, sessionID)
}

func (a *Agent) complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	started := a.now()
	completion, err := a.provider.Complete(callCtx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ObserveLLMRequest(a.provider.Name(), outcome, time.Since(started))
	return completion, err
}

func (a *Agent) persist(ctx context.Context, session *models.Session) {
	session.Trim(a.maxHistoryTurns)
	trimToUserBoundary(session)
	if err := a.sessions.SetSession(ctx, session); err != nil {
		a.logger.Error().Err(err).Str("session_id", session.SessionID).Msg("failed to persist session")
	}
}

func (a *Agent) sessionLock(sessionID string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[sessionID] = lock
	}
	return lock
}

type functionResult struct {
	name    string
	payload map[string]any
}

// summaryReply builds the forced plain-text answer used when the model
// either returned nothing or kept requesting calls past the iteration
// budget.
func (a *Agent) summaryReply(last *functionResult) string {
	if last == nil {
		return fallbackReply
	}
	switch last.name {
	case FnCreateBooking:
		if booking, ok := last.payload["booking"].(*models.Booking); ok && payloadSucceeded(last.payload) {
			return fmt.Sprintf("Your %s appointment is booked for %s at %s.", booking.Service, booking.Date, booking.Time)
		}
		if alternatives, ok := last.payload["alternatives"].([]models.Slot); ok && len(alternatives) > 0 {
			return "That time is taken. Nearby free slots: " + formatSlots(alternatives)
		}
		return "I couldn't complete the booking. Could you confirm the service, date and time?"
	case FnCancelBooking:
		if payloadSucceeded(last.payload) {
			return "Your booking has been cancelled."
		}
		return "I couldn't find a booking to cancel."
	case FnCheckAvailability:
		if available, ok := last.payload["available"].(bool); ok {
			if available {
				return "That time slot is free."
			}
			return "That time slot is already taken."
		}
	case FnListBookings:
		if bookings, ok := last.payload["bookings"].([]*models.Booking); ok {
			if len(bookings) == 0 {
				return "You have no bookings."
			}
			parts := make([]string, 0, len(bookings))
			for _, b := range bookings {
				parts = append(parts, fmt.Sprintf("%s on %s at %s (%s)", b.Service, b.Date, b.Time, b.Status))
			}
			return "Your bookings: " + strings.Join(parts, "; ")
		}
	case FnSuggestAlternatives:
		if alternatives, ok := last.payload["alternatives"].([]models.Slot); ok && len(alternatives) > 0 {
			return "Free slots: " + formatSlots(alternatives)
		}
		return "No free slots found nearby."
	}
	return fallbackReply
}

func formatSlots(slots []models.Slot) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, fmt.Sprintf("%s %s", s.Date, s.Time))
	}
	return strings.Join(parts, ", ")
}

func payloadSucceeded(payload map[string]any) bool {
	if v, ok := payload["success"].(bool); ok {
		return v
	}
	return false
}

func payloadOutcome(payload map[string]any, engineInvoked bool) string {
	if !engineInvoked {
		return "rejected"
	}
	if errName, ok := payload["error"].(string); ok && errName != "" {
		return errName
	}
	return "ok"
}

// cloneSession copies the stored session so the loop mutates a private
// view; the store is only updated via persist.
func cloneSession(stored *models.Session, sessionID, userID string) *models.Session {
	work := &models.Session{SessionID: sessionID, UserID: userID}
	if stored != nil {
		work.Turns = append([]models.Turn(nil), stored.Turns...)
		if stored.UserID != "" {
			work.UserID = stored.UserID
		}
	}
	return work
}

// trimToUserBoundary drops leading turns until the history starts with
// a user message, so a trimmed window never opens with an orphaned
// function result.
func trimToUserBoundary(session *models.Session) {
	for len(session.Turns) > 0 && session.Turns[0].Role != models.RoleUser {
		session.Turns = session.Turns[1:]
	}
}
