package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"marketflow/logger"
	"marketflow/realtime"
)

// ErrQueueFull is returned by Notify when the dispatcher cannot accept more work.
var ErrQueueFull = errors.New("notification: queue full")

var ErrClosed = errors.New("notification: dispatcher closed")

// Dispatcher persists and pushes notifications on a background worker so the
// caller never waits on delivery. Notify only enqueues.
type Dispatcher struct {
	repo      Repository
	publisher realtime.Publisher
	log       *logger.Logger
	now       func() time.Time

	queue  chan Notification
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(repo Repository, publisher realtime.Publisher, log *logger.Logger, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{
		repo:      repo,
		publisher: publisher,
		log:       log.With("component", "NotificationDispatcher"),
		now:       time.Now,
		queue:     make(chan Notification, queueSize),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Notify(_ context.Context, n Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}
	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	saved, err := d.repo.Insert(ctx, n)
	if err != nil {
		d.log.Warn("failed to persist notification", "user_id", n.UserID, "type", n.Type, "error", err)
		return
	}
	if d.publisher == nil {
		return
	}
	ev := realtime.Event{
		ID:      saved.ID,
		Channel: realtime.UserChannel(saved.UserID, "seller"),
		Type:    realtime.EventNotification,
		Data:    saved,
	}
	if err := d.publisher.Publish(ctx, ev); err != nil {
		d.log.Warn("failed to publish notification", "notification_id", saved.ID, "error", err)
	}
}

// Close stops accepting work and waits for queued notifications to drain or
// for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
