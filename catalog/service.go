package catalog

import (
	"context"
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

func (s *Service) Create(ctx context.Context, params CreateParams) (Product, error) {
	params, err := params.Normalize()
	if err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, params, s.now().UTC())
}

func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListBySeller(ctx context.Context, sellerID string) ([]Product, error) {
	return s.repo.ListBySeller(ctx, sellerID)
}
