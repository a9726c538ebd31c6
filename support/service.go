package support

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, params CreateParams) (Ticket, error) {
	params.Subject = strings.TrimSpace(params.Subject)
	params.Body = strings.TrimSpace(params.Body)
	if params.UserID == "" {
		return Ticket{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if params.Subject == "" {
		return Ticket{}, fmt.Errorf("%w: subject required", ErrInvalidInput)
	}
	return s.repo.Create(ctx, params, s.now().UTC())
}

// List returns the caller's tickets, or every ticket when asAdmin is set.
func (s *Service) List(ctx context.Context, userID string, asAdmin bool, status Status) ([]Ticket, error) {
	if status != "" && status != StatusOpen && status != StatusResolved {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	filters := ListFilters{Status: status}
	if !asAdmin {
		filters.UserID = userID
	}
	return s.repo.List(ctx, filters)
}

// Resolve closes a ticket. Owners may close their own tickets; admins may
// close any.
func (s *Service) Resolve(ctx context.Context, actorID string, asAdmin bool, ticketID string) (Ticket, error) {
	t, err := s.repo.Get(ctx, ticketID)
	if err != nil {
		return Ticket{}, err
	}
	if !asAdmin && t.UserID != actorID {
		return Ticket{}, ErrForbidden
	}
	return s.repo.Resolve(ctx, ticketID, s.now().UTC())
}
