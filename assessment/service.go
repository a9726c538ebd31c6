package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketflow/catalog"
	"marketflow/logger"
	"marketflow/notification"
)

var (
	ErrInvalidInput      = errors.New("assessment: invalid input")
	ErrInvalidStatus     = errors.New("assessment: invalid status")
	ErrInvalidTransition = errors.New("assessment: invalid transition")
)

// Notifier accepts seller notifications. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// Service moves product assessments through the review workflow.
type Service struct {
	repo     Repository
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
	strict   bool
}

func NewService(repo Repository, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		log:      log.With("component", "AssessmentService"),
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithStrictTransitions rejects transitions outside the forward review graph.
func (s *Service) WithStrictTransitions(strict bool) *Service {
	s.strict = strict
	return s
}

// Submit opens a new assessment for productID in pending_digital_review and
// resets the product's approval status to pending.
func (s *Service) Submit(ctx context.Context, productID string) (Assessment, error) {
	if strings.TrimSpace(productID) == "" {
		return Assessment{}, fmt.Errorf("%w: product id required", ErrInvalidInput)
	}
	return s.repo.Create(ctx, productID, s.now().UTC())
}

// SubmitProduct creates a product and opens its first assessment in
// pending_digital_review. Neither is stored if either write fails.
func (s *Service) SubmitProduct(ctx context.Context, params catalog.CreateParams) (catalog.Product, Assessment, error) {
	params, err := params.Normalize()
	if err != nil {
		return catalog.Product{}, Assessment{}, err
	}
	return s.repo.CreateProduct(ctx, params, s.now().UTC())
}

// Transition sets the latest assessment of productID to target, records the
// matching audit note and mirrors the approval status onto the product. The
// seller is notified after the change is committed; a failed notification is
// logged and does not fail the transition.
func (s *Service) Transition(ctx context.Context, productID string, target Status, meta Metadata) (Assessment, error) {
	if strings.TrimSpace(productID) == "" {
		return Assessment{}, fmt.Errorf("%w: product id required", ErrInvalidInput)
	}
	if !target.Valid() {
		return Assessment{}, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}
	meta.Reason = strings.TrimSpace(meta.Reason)
	meta.Logistics = strings.TrimSpace(meta.Logistics)

	params := TransitionParams{
		ProductID: productID,
		Next:      target,
		Note:      noteFor(target, meta),
		At:        s.now().UTC(),
	}
	if s.strict {
		params.Guard = CheckTransition
	}

	res, err := s.repo.ApplyTransition(ctx, params)
	if err != nil {
		return Assessment{}, err
	}
	s.log.Info("assessment transitioned",
		"product_id", productID,
		"assessment_id", res.Assessment.ID,
		"from", res.Previous,
		"to", target,
		"actor_id", meta.ActorID,
	)

	s.notifySeller(ctx, res.Assessment, meta)
	return res.Assessment, nil
}

func (s *Service) Latest(ctx context.Context, productID string) (Assessment, error) {
	return s.repo.Latest(ctx, productID)
}

func (s *Service) List(ctx context.Context, filters Filters) ([]Assessment, int, error) {
	if filters.Status != "" && !filters.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidStatus, filters.Status)
	}
	return s.repo.List(ctx, filters)
}

// Notes returns the audit trail of the latest assessment for productID.
func (s *Service) Notes(ctx context.Context, productID string) ([]Note, error) {
	a, err := s.repo.Latest(ctx, productID)
	if err != nil {
		return nil, err
	}
	return s.repo.Notes(ctx, a.ID)
}

// Stale lists latest assessments that have sat in status since before cutoff.
func (s *Service) Stale(ctx context.Context, status Status, olderThan time.Duration, limit int) ([]Assessment, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.repo.Stale(ctx, status, s.now().UTC().Add(-olderThan), limit)
}

func (s *Service) notifySeller(ctx context.Context, a Assessment, meta Metadata) {
	if s.notifier == nil || a.SellerID == "" {
		return
	}
	title, body, ok := sellerMessage(a.Status, meta.Reason)
	if !ok {
		return
	}
	productID := a.ProductID
	n := notification.Notification{
		UserID:    a.SellerID,
		Type:      notification.TypeAssessmentStatus,
		Title:     title,
		Body:      body,
		ProductID: &productID,
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.Warn("seller notification failed", "product_id", a.ProductID, "seller_id", a.SellerID, "error", err)
	}
}

func sellerMessage(status Status, reason string) (string, string, bool) {
	withReason := func(base string) string {
		if reason == "" {
			return base
		}
		return base + " Reason: " + reason
	}
	switch status {
	case StatusWaitingForSample:
		return "Digital review passed", "Your product passed digital review. Please send a physical sample for inspection.", true
	case StatusVerified:
		return "Product verified", "Your product has been verified and is now approved for sale.", true
	case StatusForRevision:
		return "Revision requested", withReason("Your product needs changes before it can be approved."), true
	case StatusRejected:
		return "Product rejected", withReason("Your product was rejected."), true
	}
	return "", "", false
}
