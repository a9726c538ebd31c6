package chat

import (
	"time"

	"marketflow/auth"
	"marketflow/profile"
)

// Conversation pairs one buyer with one seller and carries the denormalized
// last message plus an unread counter per party.
type Conversation struct {
	ID                string     `json:"id"`
	BuyerID           string     `json:"buyer_id"`
	SellerID          string     `json:"seller_id"`
	LastMessage       string     `json:"last_message"`
	LastMessageAt     *time.Time `json:"last_message_at,omitempty"`
	BuyerUnreadCount  int        `json:"buyer_unread_count"`
	SellerUnreadCount int        `json:"seller_unread_count"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Participant returns the user id occupying role, or "" for non-chat roles.
func (c Conversation) Participant(role auth.Role) string {
	switch role {
	case auth.RoleBuyer:
		return c.BuyerID
	case auth.RoleSeller:
		return c.SellerID
	default:
		return ""
	}
}

func (c Conversation) UnreadFor(role auth.Role) int {
	if role == auth.RoleBuyer {
		return c.BuyerUnreadCount
	}
	return c.SellerUnreadCount
}

// Message ids are ULIDs so they sort by creation time.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderRole     auth.Role `json:"sender_role"`
	Text           string    `json:"text"`
	ImageURL       *string   `json:"image_url,omitempty"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationView is a conversation enriched with both parties' display
// profiles. A party without a profile is left nil.
type ConversationView struct {
	Conversation
	Buyer  *profile.Summary `json:"buyer,omitempty"`
	Seller *profile.Summary `json:"seller,omitempty"`
}

type SendParams struct {
	ConversationID string
	SenderID       string
	SenderRole     auth.Role
	Text           string
	ImageURL       *string
}

// Counterpart returns the other chat role.
func Counterpart(role auth.Role) auth.Role {
	if role == auth.RoleBuyer {
		return auth.RoleSeller
	}
	return auth.RoleBuyer
}

func chatRole(role auth.Role) bool {
	return role == auth.RoleBuyer || role == auth.RoleSeller
}

// imagePreview stands in for last_message when a message carries only an image.
const imagePreview = "[image]"
