// Package memstore keeps every table in process memory. It backs mock mode,
// used when no DATABASE_URL is configured, and satisfies the same repository
// interfaces as the PostgreSQL implementations. One mutex guards all tables,
// so each repository call is atomic with respect to every other.
package memstore

import (
	"sync"
	"time"

	"marketflow/assessment"
	"marketflow/auth"
	"marketflow/catalog"
	"marketflow/chat"
	"marketflow/notification"
	"marketflow/profile"
	"marketflow/support"
)

type Store struct {
	mu sync.Mutex

	users        map[string]auth.User
	usersByEmail map[string]string

	profiles map[profileKey]profile.Profile

	products map[string]catalog.Product

	assessments []assessment.Assessment
	notes       map[string][]assessment.Note

	conversations map[string]chat.Conversation
	pairs         map[[2]string]string
	messages      map[string][]chat.Message

	notifications []notification.Notification

	tickets     map[string]support.Ticket
	ticketOrder []string
}

type profileKey struct {
	role   auth.Role
	userID string
}

func New() *Store {
	return &Store{
		users:         make(map[string]auth.User),
		usersByEmail:  make(map[string]string),
		profiles:      make(map[profileKey]profile.Profile),
		products:      make(map[string]catalog.Product),
		notes:         make(map[string][]assessment.Note),
		conversations: make(map[string]chat.Conversation),
		pairs:         make(map[[2]string]string),
		messages:      make(map[string][]chat.Message),
		tickets:       make(map[string]support.Ticket),
	}
}

func (s *Store) Users() *UserRepository                 { return &UserRepository{s: s} }
func (s *Store) Profiles() *ProfileRepository           { return &ProfileRepository{s: s} }
func (s *Store) Products() *ProductRepository           { return &ProductRepository{s: s} }
func (s *Store) Assessments() *AssessmentRepository     { return &AssessmentRepository{s: s} }
func (s *Store) Conversations() *ConversationRepository { return &ConversationRepository{s: s} }
func (s *Store) Notifications() *NotificationRepository { return &NotificationRepository{s: s} }
func (s *Store) Tickets() *TicketRepository             { return &TicketRepository{s: s} }

var (
	_ auth.Repository         = (*UserRepository)(nil)
	_ profile.Repository      = (*ProfileRepository)(nil)
	_ catalog.Repository      = (*ProductRepository)(nil)
	_ assessment.Repository   = (*AssessmentRepository)(nil)
	_ chat.Repository         = (*ConversationRepository)(nil)
	_ notification.Repository = (*NotificationRepository)(nil)
	_ support.Repository      = (*TicketRepository)(nil)
)

// clock stamps rows whose callers do not pass a time.
var clock = func() time.Time { return time.Now().UTC() }
