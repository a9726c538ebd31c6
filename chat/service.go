package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"marketflow/auth"
	"marketflow/logger"
	"marketflow/profile"
	"marketflow/realtime"
)

var (
	ErrInvalidInput   = errors.New("chat: invalid input")
	ErrNotParticipant = errors.New("chat: user is not a participant in this role")
	ErrEmptyMessage   = errors.New("chat: message needs text or an image")
	ErrInvalidRole    = errors.New("chat: role must be buyer or seller")
	ErrSelfChat       = errors.New("chat: buyer and seller must differ")
	ErrRoleMismatch   = errors.New("chat: user does not hold that role")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// UserReader looks up accounts so a conversation always pairs an existing
// buyer with an existing seller.
type UserReader interface {
	GetUserByID(ctx context.Context, userID string) (auth.User, error)
}

// ProfileReader resolves display profiles for conversation views.
type ProfileReader interface {
	Get(ctx context.Context, role auth.Role, userID string) (profile.Profile, error)
}

// Service coordinates conversations between buyers and sellers and pushes
// changes to realtime subscribers after they are stored.
type Service struct {
	repo      Repository
	users     UserReader
	profiles  ProfileReader
	publisher realtime.Publisher
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

func NewService(repo Repository, users UserReader, profiles ProfileReader, publisher realtime.Publisher, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		profiles:  profiles,
		publisher: publisher,
		log:       log.With("component", "ChatService"),
		now:       time.Now,
		newID:     newULIDSource().Next,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.newID = gen
	return s
}

// GetOrCreate returns the conversation for the (buyer, seller) pair, creating
// it with zeroed counters on first contact.
func (s *Service) GetOrCreate(ctx context.Context, buyerID, sellerID string) (ConversationView, error) {
	if buyerID == "" || sellerID == "" {
		return ConversationView{}, fmt.Errorf("%w: buyer and seller ids required", ErrInvalidInput)
	}
	if buyerID == sellerID {
		return ConversationView{}, ErrSelfChat
	}
	if err := s.requireUser(ctx, buyerID, auth.RoleBuyer); err != nil {
		return ConversationView{}, err
	}
	if err := s.requireUser(ctx, sellerID, auth.RoleSeller); err != nil {
		return ConversationView{}, err
	}
	c, err := s.repo.GetOrCreate(ctx, buyerID, sellerID, s.now().UTC())
	if err != nil {
		return ConversationView{}, err
	}
	return s.enrich(ctx, c)
}

func (s *Service) requireUser(ctx context.Context, userID string, role auth.Role) error {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("chat: look up %s: %w", role, err)
	}
	if u.Role != role {
		return fmt.Errorf("%w: %s is not a %s", ErrRoleMismatch, userID, role)
	}
	return nil
}

// Get returns a conversation the caller takes part in.
func (s *Service) Get(ctx context.Context, conversationID, userID string, role auth.Role) (ConversationView, error) {
	c, err := s.participantConversation(ctx, conversationID, userID, role)
	if err != nil {
		return ConversationView{}, err
	}
	return s.enrich(ctx, c)
}

// Send stores a message from the participant in senderRole, updates the
// conversation's last message and increments the recipient's unread counter.
func (s *Service) Send(ctx context.Context, params SendParams) (Message, error) {
	params.Text = strings.TrimSpace(params.Text)
	if params.ImageURL != nil && strings.TrimSpace(*params.ImageURL) == "" {
		params.ImageURL = nil
	}
	if params.Text == "" && params.ImageURL == nil {
		return Message{}, ErrEmptyMessage
	}

	if _, err := s.participantConversation(ctx, params.ConversationID, params.SenderID, params.SenderRole); err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:             s.newID(),
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		SenderRole:     params.SenderRole,
		Text:           params.Text,
		ImageURL:       params.ImageURL,
		CreatedAt:      s.now().UTC(),
	}
	preview := msg.Text
	if preview == "" {
		preview = imagePreview
	}

	conv, err := s.repo.AppendMessage(ctx, msg, preview)
	if err != nil {
		return Message{}, err
	}

	s.publish(ctx, realtime.Event{
		ID:      msg.ID,
		Channel: realtime.ConversationChannel(conv.ID),
		Type:    realtime.EventMessageCreated,
		Data:    msg,
	})
	s.publishConversation(ctx, conv, msg.ID)
	return msg, nil
}

// MarkRead flags the counterpart's messages as read and zeroes the caller's
// unread counter.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string, role auth.Role) (Conversation, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID, role); err != nil {
		return Conversation{}, err
	}
	conv, err := s.repo.MarkRead(ctx, conversationID, role, s.now().UTC())
	if err != nil {
		return Conversation{}, err
	}
	s.publish(ctx, realtime.Event{
		ID:      "read:" + conv.ID + ":" + string(role) + ":" + s.newID(),
		Channel: realtime.UserChannel(userID, string(role)),
		Type:    realtime.EventConversationUpdated,
		Data:    conv,
	})
	return conv, nil
}

// Messages pages newest-first through a conversation; before is the id of
// the oldest message already seen.
func (s *Service) Messages(ctx context.Context, conversationID, userID string, role auth.Role, before string, limit int) ([]Message, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID, role); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.repo.Messages(ctx, conversationID, before, limit)
}

// Conversations lists the caller's inbox, most recent activity first.
func (s *Service) Conversations(ctx context.Context, userID string, role auth.Role) ([]ConversationView, error) {
	if !chatRole(role) {
		return nil, ErrInvalidRole
	}
	convs, err := s.repo.ListForUser(ctx, userID, role)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, len(convs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, c := range convs {
		i, c := i, c
		g.Go(func() error {
			v, err := s.enrich(gctx, c)
			if err != nil {
				return err
			}
			views[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Service) participantConversation(ctx context.Context, conversationID, userID string, role auth.Role) (Conversation, error) {
	if !chatRole(role) {
		return Conversation{}, ErrInvalidRole
	}
	if conversationID == "" {
		return Conversation{}, ErrNotFound
	}
	c, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if userID == "" || c.Participant(role) != userID {
		return Conversation{}, ErrNotParticipant
	}
	return c, nil
}

// enrich looks up both parties' profiles concurrently. Missing profiles are
// tolerated.
func (s *Service) enrich(ctx context.Context, c Conversation) (ConversationView, error) {
	view := ConversationView{Conversation: c}
	if s.profiles == nil {
		return view, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sum, err := s.summary(gctx, auth.RoleBuyer, c.BuyerID)
		view.Buyer = sum
		return err
	})
	g.Go(func() error {
		sum, err := s.summary(gctx, auth.RoleSeller, c.SellerID)
		view.Seller = sum
		return err
	})
	if err := g.Wait(); err != nil {
		return ConversationView{}, fmt.Errorf("chat: load profiles: %w", err)
	}
	return view, nil
}

func (s *Service) summary(ctx context.Context, role auth.Role, userID string) (*profile.Summary, error) {
	p, err := s.profiles.Get(ctx, role, userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	sum := p.Summary()
	return &sum, nil
}

func (s *Service) publishConversation(ctx context.Context, c Conversation, messageID string) {
	for _, role := range []auth.Role{auth.RoleBuyer, auth.RoleSeller} {
		s.publish(ctx, realtime.Event{
			ID:      "conv:" + c.ID + ":" + messageID,
			Channel: realtime.UserChannel(c.Participant(role), string(role)),
			Type:    realtime.EventConversationUpdated,
			Data:    c,
		})
	}
}

func (s *Service) publish(ctx context.Context, ev realtime.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("realtime publish failed", "channel", ev.Channel, "event_id", ev.ID, "error", err)
	}
}
