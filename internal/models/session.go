package models

import (
	"encoding/json"
	"time"
)

// Turn is one entry in a conversation history.
type Turn struct {
	Role     string          `json:"role"` // user, assistant, function
	Content  string          `json:"content,omitempty"`
	Function string          `json:"function,omitempty"` // set on function-call and function-result turns
	Args     json.RawMessage `json:"args,omitempty"`     // arguments of a function-call turn
}

// Session is the per-user conversation state. Turns are ordered oldest
// first; the agent trims the front when MaxTurns is exceeded.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Turns     []Turn    `json:"turns"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Append returns the session with the turn added.
func (s *Session) Append(turn Turn) {
	s.Turns = append(s.Turns, turn)
	s.UpdatedAt = time.Now()
}

// Trim drops the oldest turns so that at most max remain. No-op when
// max <= 0.
func (s *Session) Trim(max int) {
	if max <= 0 || len(s.Turns) <= max {
		return
	}
	s.Turns = append([]Turn(nil), s.Turns[len(s.Turns)-max:]...)
}
