package realtime

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"marketflow/logger"
)

const (
	EventMessageCreated      = "message.created"
	EventConversationUpdated = "conversation.updated"
	EventNotification        = "notification.created"
)

// Event is one push delivered to subscribers of Channel. ID is the
// de-duplication key listeners use.
type Event struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
}

// Publisher pushes events to subscribers. Delivery is at-most-once.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}

func UserChannel(userID, role string) string {
	return "user:" + userID + ":" + role
}

// Hub fans events out to in-process subscribers keyed by channel.
type Hub struct {
	mu     sync.RWMutex
	log    *logger.Logger
	buffer int
	subs   map[string]map[*Subscription]struct{}
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:    log.With("component", "RealtimeHub"),
		buffer: 32,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription receives events for its channels on C until Close.
type Subscription struct {
	ID       string
	channels []string
	events   chan Event
	hub      *Hub
	once     sync.Once
}

func (s *Subscription) C() <-chan Event {
	return s.events
}

func (s *Subscription) Channels() []string {
	return append([]string(nil), s.channels...)
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.events)
	})
}

func (h *Hub) Subscribe(channels ...string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		events: make(chan Event, h.buffer),
		hub:    h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		set, ok := h.subs[ch]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.subs[ch] = set
		}
		set[sub] = struct{}{}
		sub.channels = append(sub.channels, ch)
	}
	h.log.Debug("realtime subscription opened", "subscription_id", sub.ID, "channels", sub.channels)
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range sub.channels {
		if set, ok := h.subs[ch]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, ch)
			}
		}
	}
}

// Publish delivers ev to local subscribers without blocking; a subscriber
// with a full buffer misses the event.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.Broadcast(ev)
	return nil
}

func (h *Hub) Broadcast(ev Event) {
	if ev.Channel == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.Channel] {
		select {
		case sub.events <- ev:
		default:
			h.log.Warn("dropping realtime event; subscriber buffer full", "subscription_id", sub.ID, "event_id", ev.ID)
		}
	}
}

// Subscribers returns the number of subscriptions on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
