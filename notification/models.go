package notification

import "time"

const (
	TypeAssessmentStatus = "assessment_status"
	TypeSampleReminder   = "sample_reminder"
)

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ProductID *string    `json:"product_id,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
