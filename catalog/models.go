package catalog

import (
	"fmt"
	"strings"
	"time"
)

// ApprovalStatus is the coarse review state mirrored onto a product.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Product mirrors the products columns this service reads and writes. The
// full catalog shape belongs to the storefront.
type Product struct {
	ID             string         `json:"id"`
	SellerID       string         `json:"seller_id"`
	Name           string         `json:"name"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

type CreateParams struct {
	SellerID string
	Name     string
}

// Normalize trims the name and checks both fields are present.
func (p CreateParams) Normalize() (CreateParams, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.SellerID == "" {
		return p, fmt.Errorf("%w: seller id required", ErrInvalidInput)
	}
	if p.Name == "" {
		return p, fmt.Errorf("%w: product name required", ErrInvalidInput)
	}
	return p, nil
}
