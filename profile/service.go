package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketflow/auth"
)

// Service exposes business-level profile operations.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Get(ctx context.Context, role auth.Role, userID string) (Profile, error) {
	return s.repo.Get(ctx, role, userID)
}

// Ensure creates p when userID has no profile in role yet and otherwise
// returns the stored one unchanged.
func (s *Service) Ensure(ctx context.Context, p Profile) (Profile, error) {
	existing, err := s.repo.Get(ctx, p.Role, p.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	return s.Upsert(ctx, p)
}

// Upsert creates or replaces the caller's profile for role.
func (s *Service) Upsert(ctx context.Context, p Profile) (Profile, error) {
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	if p.UserID == "" {
		return Profile{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if p.DisplayName == "" {
		return Profile{}, fmt.Errorf("%w: display name required", ErrInvalidInput)
	}
	if p.AvatarURL != nil && strings.TrimSpace(*p.AvatarURL) == "" {
		p.AvatarURL = nil
	}
	p.UpdatedAt = s.now().UTC()
	return s.repo.Upsert(ctx, p)
}
