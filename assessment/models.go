package assessment

import (
	"time"

	"marketflow/catalog"
)

// Status is the review stage of a product assessment.
type Status string

const (
	StatusPendingDigitalReview  Status = "pending_digital_review"
	StatusWaitingForSample      Status = "waiting_for_sample"
	StatusPendingPhysicalReview Status = "pending_physical_review"
	StatusVerified              Status = "verified"
	StatusForRevision           Status = "for_revision"
	StatusRejected              Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingDigitalReview, StatusWaitingForSample, StatusPendingPhysicalReview,
		StatusVerified, StatusForRevision, StatusRejected:
		return true
	}
	return false
}

// Approval is the coarse status mirrored onto the product row.
func (s Status) Approval() catalog.ApprovalStatus {
	switch s {
	case StatusVerified:
		return catalog.ApprovalApproved
	case StatusRejected:
		return catalog.ApprovalRejected
	default:
		return catalog.ApprovalPending
	}
}

// Assessment is one review lifecycle of a product. A product may have several;
// the one with the latest submitted_at (then created_at) is authoritative.
type Assessment struct {
	ID                  string     `json:"id"`
	ProductID           string     `json:"product_id"`
	SellerID            string     `json:"seller_id"`
	Status              Status     `json:"status"`
	SubmittedAt         time.Time  `json:"submitted_at"`
	VerifiedAt          *time.Time `json:"verified_at,omitempty"`
	RevisionRequestedAt *time.Time `json:"revision_requested_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NoteKind selects the audit table a note is written to.
type NoteKind string

const (
	NoteApproval  NoteKind = "approval"
	NoteRejection NoteKind = "rejection"
	NoteRevision  NoteKind = "revision"
	NoteLogistics NoteKind = "logistics"
)

// Note is an append-only audit row attached to an assessment.
type Note struct {
	ID           string    `json:"id"`
	AssessmentID string    `json:"assessment_id"`
	Kind         NoteKind  `json:"kind"`
	Description  string    `json:"description"`
	CreatedBy    *string   `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Metadata is the optional context an admin supplies with a transition.
type Metadata struct {
	Reason    string `json:"reason"`
	Logistics string `json:"logistics"`
	ActorID   string `json:"-"`
}

type Filters struct {
	Status   Status
	Page     int
	PageSize int
}

// TransitionParams are the writes applied atomically by Repository.ApplyTransition.
// Guard, when set, runs against the locked current status before any write.
type TransitionParams struct {
	ProductID string
	Next      Status
	Note      *Note
	At        time.Time
	Guard     func(from, to Status) error
}

type TransitionResult struct {
	Previous   Status
	Assessment Assessment
}

// noteFor returns the audit row a transition to target should write, or nil.
func noteFor(target Status, meta Metadata) *Note {
	var n Note
	switch target {
	case StatusWaitingForSample, StatusVerified:
		n = Note{Kind: NoteApproval, Description: meta.Reason}
	case StatusRejected:
		n = Note{Kind: NoteRejection, Description: meta.Reason}
	case StatusForRevision:
		n = Note{Kind: NoteRevision, Description: meta.Reason}
	case StatusPendingPhysicalReview:
		if meta.Logistics == "" {
			return nil
		}
		n = Note{Kind: NoteLogistics, Description: meta.Logistics}
	default:
		return nil
	}
	if meta.ActorID != "" {
		actor := meta.ActorID
		n.CreatedBy = &actor
	}
	return &n
}
