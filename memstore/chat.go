package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"marketflow/auth"
	"marketflow/chat"
)

type ConversationRepository struct {
	s *Store
}

func (r *ConversationRepository) GetOrCreate(_ context.Context, buyerID, sellerID string, at time.Time) (chat.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := [2]string{buyerID, sellerID}
	if id, ok := r.s.pairs[key]; ok {
		return r.s.conversations[id], nil
	}
	c := chat.Conversation{
		ID:        uuid.NewString(),
		BuyerID:   buyerID,
		SellerID:  sellerID,
		CreatedAt: at,
		UpdatedAt: at,
	}
	r.s.conversations[c.ID] = c
	r.s.pairs[key] = c.ID
	return c, nil
}

func (r *ConversationRepository) Get(_ context.Context, id string) (chat.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return chat.Conversation{}, chat.ErrNotFound
	}
	return c, nil
}

func (r *ConversationRepository) AppendMessage(_ context.Context, msg chat.Message, preview string) (chat.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.conversations[msg.ConversationID]
	if !ok {
		return chat.Conversation{}, chat.ErrNotFound
	}
	msg.IsRead = false
	r.s.messages[c.ID] = append(r.s.messages[c.ID], msg)

	at := msg.CreatedAt
	c.LastMessage = preview
	c.LastMessageAt = &at
	c.UpdatedAt = at
	if chat.Counterpart(msg.SenderRole) == auth.RoleBuyer {
		c.BuyerUnreadCount++
	} else {
		c.SellerUnreadCount++
	}
	r.s.conversations[c.ID] = c
	return c, nil
}

func (r *ConversationRepository) MarkRead(_ context.Context, conversationID string, reader auth.Role, at time.Time) (chat.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, chat.ErrNotFound
	}
	from := chat.Counterpart(reader)
	msgs := r.s.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderRole == from {
			msgs[i].IsRead = true
		}
	}
	if reader == auth.RoleBuyer {
		c.BuyerUnreadCount = 0
	} else {
		c.SellerUnreadCount = 0
	}
	c.UpdatedAt = at
	r.s.conversations[conversationID] = c
	return c, nil
}

func (r *ConversationRepository) Messages(_ context.Context, conversationID, before string, limit int) ([]chat.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	msgs := r.s.messages[conversationID]
	out := make([]chat.Message, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		if before != "" && msgs[i].ID >= before {
			continue
		}
		out = append(out, msgs[i])
	}
	return out, nil
}

func (r *ConversationRepository) ListForUser(_ context.Context, userID string, role auth.Role) ([]chat.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []chat.Conversation{}
	for _, c := range r.s.conversations {
		if c.Participant(role) == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LastMessageAt != nil && b.LastMessageAt != nil && !a.LastMessageAt.Equal(*b.LastMessageAt):
			return a.LastMessageAt.After(*b.LastMessageAt)
		case a.LastMessageAt != nil && b.LastMessageAt == nil:
			return true
		case a.LastMessageAt == nil && b.LastMessageAt != nil:
			return false
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out, nil
}
