package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"marketflow/assessment"
	"marketflow/logger"
	"marketflow/notification"
)

// StaleLister finds assessments that have sat in a status too long.
type StaleLister interface {
	Stale(ctx context.Context, status assessment.Status, olderThan time.Duration, limit int) ([]assessment.Assessment, error)
}

// SampleReminder nudges sellers whose product has waited for a physical
// sample longer than After. Each assessment is reminded at most once per
// After window.
type SampleReminder struct {
	lister   StaleLister
	notifier assessment.Notifier
	log      *logger.Logger
	after    time.Duration
	now      func() time.Time

	mu       sync.Mutex
	reminded map[string]time.Time
}

func NewSampleReminder(lister StaleLister, notifier assessment.Notifier, after time.Duration, log *logger.Logger) *SampleReminder {
	return &SampleReminder{
		lister:   lister,
		notifier: notifier,
		log:      log.With("job", "sample_reminder"),
		after:    after,
		now:      time.Now,
		reminded: make(map[string]time.Time),
	}
}

func (j *SampleReminder) Name() string { return "sample_reminder" }

func (j *SampleReminder) Run(ctx context.Context) error {
	j.prune(j.now())

	stale, err := j.lister.Stale(ctx, assessment.StatusWaitingForSample, j.after, 200)
	if err != nil {
		return fmt.Errorf("jobs: list stale sample requests: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	sent := 0
	for _, a := range stale {
		if last, ok := j.reminded[a.ID]; ok && now.Sub(last) < j.after {
			continue
		}
		productID := a.ProductID
		err := j.notifier.Notify(ctx, notification.Notification{
			UserID:    a.SellerID,
			Type:      notification.TypeSampleReminder,
			Title:     "Sample still awaited",
			Body:      "We are still waiting for the physical sample of your product. Please ship it so review can continue.",
			ProductID: &productID,
		})
		if err != nil {
			j.log.Warn("sample reminder not queued", "assessment_id", a.ID, "error", err)
			continue
		}
		j.reminded[a.ID] = now
		sent++
	}
	j.log.Info("sample reminders sent", "count", sent, "stale", len(stale))
	return nil
}

// prune forgets reminders whose window has closed; those assessments are
// eligible again anyway.
func (j *SampleReminder) prune(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for id, last := range j.reminded {
		if now.Sub(last) >= j.after {
			delete(j.reminded, id)
		}
	}
}
