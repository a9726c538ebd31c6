package profile

import (
	"time"

	"marketflow/auth"
)

// Profile is the public display identity of a buyer or seller.
type Profile struct {
	UserID      string    `json:"user_id"`
	Role        auth.Role `json:"role"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary is the slice of a profile embedded in conversation views.
type Summary struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

func (p Profile) Summary() Summary {
	return Summary{UserID: p.UserID, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
}
