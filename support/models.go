package support

import "time"

// Status represents the lifecycle of a support ticket.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Ticket mirrors the support_tickets table.
type Ticket struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	Status     Status     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type CreateParams struct {
	UserID  string
	Subject string
	Body    string
}

// ListFilters selects tickets. An empty UserID lists every user's tickets.
type ListFilters struct {
	UserID string
	Status Status
}
