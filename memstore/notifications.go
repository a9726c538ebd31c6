package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"marketflow/notification"
	"marketflow/support"
)

type NotificationRepository struct {
	s *Store
}

func (r *NotificationRepository) Insert(_ context.Context, n notification.Notification) (notification.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n.ID = uuid.NewString()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = clock()
	}
	r.s.notifications = append(r.s.notifications, n)
	return n, nil
}

func (r *NotificationRepository) ListForUser(_ context.Context, userID string, limit int) ([]notification.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []notification.Notification{}
	for i := len(r.s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.notifications[i].UserID == userID {
			out = append(out, r.s.notifications[i])
		}
	}
	return out, nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, userID, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.notifications {
		n := &r.s.notifications[i]
		if n.ID == id && n.UserID == userID {
			if n.ReadAt == nil {
				n.ReadAt = &at
			}
			return nil
		}
	}
	return notification.ErrNotFound
}

type TicketRepository struct {
	s *Store
}

func (r *TicketRepository) Create(_ context.Context, params support.CreateParams, at time.Time) (support.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := support.Ticket{
		ID:        uuid.NewString(),
		UserID:    params.UserID,
		Subject:   params.Subject,
		Body:      params.Body,
		Status:    support.StatusOpen,
		CreatedAt: at,
		UpdatedAt: at,
	}
	r.s.tickets[t.ID] = t
	r.s.ticketOrder = append(r.s.ticketOrder, t.ID)
	return t, nil
}

func (r *TicketRepository) Get(_ context.Context, id string) (support.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return support.Ticket{}, support.ErrNotFound
	}
	return t, nil
}

func (r *TicketRepository) List(_ context.Context, filters support.ListFilters) ([]support.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []support.Ticket{}
	for i := len(r.s.ticketOrder) - 1; i >= 0; i-- {
		t := r.s.tickets[r.s.ticketOrder[i]]
		if filters.UserID != "" && t.UserID != filters.UserID {
			continue
		}
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *TicketRepository) Resolve(_ context.Context, id string, at time.Time) (support.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return support.Ticket{}, support.ErrNotFound
	}
	if t.Status == support.StatusResolved {
		return support.Ticket{}, support.ErrBadStatus
	}
	t.Status = support.StatusResolved
	t.ResolvedAt = &at
	t.UpdatedAt = at
	r.s.tickets[id] = t
	return t, nil
}
