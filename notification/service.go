package notification

import (
	"context"
	"fmt"
	"time"
)

// Service serves a user's notification inbox.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	return s.repo.ListForUser(ctx, userID, limit)
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	if id == "" {
		return ErrNotFound
	}
	return s.repo.MarkRead(ctx, userID, id, s.now().UTC())
}
