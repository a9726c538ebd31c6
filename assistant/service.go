package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketflow/logger"
)

var (
	ErrEmptyPrompt    = errors.New("assistant: prompt required")
	ErrInvalidSession = errors.New("assistant: invalid session history")
)

// Service replies to assistant prompts. It is stateless; every call works
// only from the Session passed in.
type Service struct {
	model    Model
	maxTurns int
	log      *logger.Logger
	now      func() time.Time
}

func NewService(model Model, maxTurns int, log *logger.Logger) *Service {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &Service{
		model:    model,
		maxTurns: maxTurns,
		log:      log.With("component", "AssistantService"),
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// NewSession starts an empty session bounded by the configured turn limit.
func (s *Service) NewSession() *Session {
	return NewSession(uuid.NewString(), s.maxTurns)
}

// Reply asks the model for the next answer and, on success, appends both the
// prompt and the answer to sess. sess is left untouched on error.
func (s *Service) Reply(ctx context.Context, sess *Session, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if err := sess.validate(); err != nil {
		return "", err
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.MaxTurns <= 0 || sess.MaxTurns > s.maxTurns {
		sess.MaxTurns = s.maxTurns
	}
	sess.trim()

	reply, err := s.model.Generate(ctx, sess.History(), prompt)
	if err != nil {
		s.log.Warn("assistant reply failed", "session_id", sess.ID, "error", err)
		return "", err
	}

	now := s.now().UTC()
	sess.Append(Turn{Role: RoleUser, Text: prompt, At: now})
	sess.Append(Turn{Role: RoleModel, Text: reply, At: now})
	return reply, nil
}
