package assistant

import (
	"fmt"
	"strings"
	"time"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is the whole conversational state of one assistant chat. It is
// owned by the caller and holds at most MaxTurns turns; older turns are
// dropped first.
type Session struct {
	ID       string `json:"id"`
	MaxTurns int    `json:"max_turns"`
	Turns    []Turn `json:"turns"`
}

func NewSession(id string, maxTurns int) *Session {
	return &Session{ID: id, MaxTurns: maxTurns, Turns: []Turn{}}
}

// Append adds t and trims the oldest turns beyond MaxTurns.
func (s *Session) Append(t Turn) {
	s.Turns = append(s.Turns, t)
	s.trim()
}

// History returns a copy of the retained turns.
func (s *Session) History() []Turn {
	return append([]Turn(nil), s.Turns...)
}

// validate rejects turns a client could not have received from Reply.
func (s *Session) validate() error {
	for i, t := range s.Turns {
		if t.Role != RoleUser && t.Role != RoleModel {
			return fmt.Errorf("%w: turn %d has role %q", ErrInvalidSession, i, t.Role)
		}
		if strings.TrimSpace(t.Text) == "" {
			return fmt.Errorf("%w: turn %d is empty", ErrInvalidSession, i)
		}
	}
	return nil
}

// trim drops the oldest turns beyond MaxTurns, then any leading model turns,
// so the retained history always opens with a user prompt.
func (s *Session) trim() {
	start := 0
	if s.MaxTurns > 0 && len(s.Turns) > s.MaxTurns {
		start = len(s.Turns) - s.MaxTurns
	}
	for start < len(s.Turns) && s.Turns[start].Role == RoleModel {
		start++
	}
	if start == 0 {
		return
	}
	kept := make([]Turn, len(s.Turns)-start)
	copy(kept, s.Turns[start:])
	s.Turns = kept
}
