package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"marketflow/assessment"
	"marketflow/catalog"
)

type ProductRepository struct {
	s *Store
}

func (r *ProductRepository) Create(_ context.Context, params catalog.CreateParams, at time.Time) (catalog.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := catalog.Product{
		ID:             uuid.NewString(),
		SellerID:       params.SellerID,
		Name:           params.Name,
		ApprovalStatus: catalog.ApprovalPending,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	r.s.products[p.ID] = p
	return p, nil
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (catalog.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (r *ProductRepository) ListBySeller(_ context.Context, sellerID string) ([]catalog.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []catalog.Product{}
	for _, p := range r.s.products {
		if p.SellerID == sellerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type AssessmentRepository struct {
	s *Store
}

func (r *AssessmentRepository) Create(_ context.Context, productID string, at time.Time) (assessment.Assessment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.products[productID]
	if !ok {
		return assessment.Assessment{}, catalog.ErrNotFound
	}
	a := assessment.Assessment{
		ID:          uuid.NewString(),
		ProductID:   productID,
		SellerID:    p.SellerID,
		Status:      assessment.StatusPendingDigitalReview,
		SubmittedAt: at,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	r.s.assessments = append(r.s.assessments, a)
	p.ApprovalStatus = catalog.ApprovalPending
	p.UpdatedAt = at
	r.s.products[productID] = p
	return a, nil
}

func (r *AssessmentRepository) CreateProduct(_ context.Context, params catalog.CreateParams, at time.Time) (catalog.Product, assessment.Assessment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p := catalog.Product{
		ID:             uuid.NewString(),
		SellerID:       params.SellerID,
		Name:           params.Name,
		ApprovalStatus: catalog.ApprovalPending,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	a := assessment.Assessment{
		ID:          uuid.NewString(),
		ProductID:   p.ID,
		SellerID:    p.SellerID,
		Status:      assessment.StatusPendingDigitalReview,
		SubmittedAt: at,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	r.s.products[p.ID] = p
	r.s.assessments = append(r.s.assessments, a)
	return p, a, nil
}

func (r *AssessmentRepository) Latest(_ context.Context, productID string) (assessment.Assessment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	idx := r.s.latestIndex(productID)
	if idx < 0 {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	return r.s.withSeller(r.s.assessments[idx]), nil
}

func (r *AssessmentRepository) ApplyTransition(_ context.Context, params assessment.TransitionParams) (assessment.TransitionResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	idx := r.s.latestIndex(params.ProductID)
	if idx < 0 {
		return assessment.TransitionResult{}, assessment.ErrNotFound
	}
	current := r.s.withSeller(r.s.assessments[idx])
	if params.Guard != nil {
		if err := params.Guard(current.Status, params.Next); err != nil {
			return assessment.TransitionResult{}, err
		}
	}
	product, ok := r.s.products[params.ProductID]
	if !ok {
		return assessment.TransitionResult{}, catalog.ErrNotFound
	}
	if params.Note != nil {
		switch params.Note.Kind {
		case assessment.NoteApproval, assessment.NoteRejection, assessment.NoteRevision, assessment.NoteLogistics:
		default:
			return assessment.TransitionResult{}, fmt.Errorf("assessment: unknown note kind %q", params.Note.Kind)
		}
	}

	next := current
	next.Status = params.Next
	next.UpdatedAt = params.At
	if params.Next == assessment.StatusVerified {
		at := params.At
		next.VerifiedAt = &at
	}
	if params.Next == assessment.StatusForRevision {
		at := params.At
		next.RevisionRequestedAt = &at
	}
	r.s.assessments[idx] = next

	if params.Note != nil {
		n := *params.Note
		n.ID = uuid.NewString()
		n.AssessmentID = next.ID
		n.CreatedAt = params.At
		r.s.notes[next.ID] = append(r.s.notes[next.ID], n)
	}

	product.ApprovalStatus = params.Next.Approval()
	product.UpdatedAt = params.At
	r.s.products[params.ProductID] = product

	return assessment.TransitionResult{Previous: current.Status, Assessment: next}, nil
}

func (r *AssessmentRepository) List(_ context.Context, filters assessment.Filters) ([]assessment.Assessment, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	r.s.mu.Lock()
	latest := r.s.latestAll()
	r.s.mu.Unlock()

	matched := []assessment.Assessment{}
	for _, a := range latest {
		if filters.Status == "" || a.Status == filters.Status {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].SubmittedAt.After(matched[j].SubmittedAt) })

	total := len(matched)
	start := (filters.Page - 1) * filters.PageSize
	if start >= total {
		return []assessment.Assessment{}, total, nil
	}
	end := start + filters.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *AssessmentRepository) Notes(_ context.Context, assessmentID string) ([]assessment.Note, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]assessment.Note{}, r.s.notes[assessmentID]...), nil
}

func (r *AssessmentRepository) Stale(_ context.Context, status assessment.Status, before time.Time, limit int) ([]assessment.Assessment, error) {
	if limit <= 0 {
		limit = 100
	}
	r.s.mu.Lock()
	latest := r.s.latestAll()
	r.s.mu.Unlock()

	out := []assessment.Assessment{}
	for _, a := range latest {
		if a.Status == status && a.UpdatedAt.Before(before) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// latestIndex returns the position of productID's authoritative assessment:
// greatest submitted_at, then created_at, then insertion order. Caller holds mu.
func (s *Store) latestIndex(productID string) int {
	best := -1
	for i, a := range s.assessments {
		if a.ProductID != productID {
			continue
		}
		if best < 0 || !newer(s.assessments[best], a) {
			best = i
		}
	}
	return best
}

// newer reports whether a is strictly newer than b.
func newer(a, b assessment.Assessment) bool {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.After(b.SubmittedAt)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// latestAll returns the authoritative assessment of every product. Caller holds mu.
func (s *Store) latestAll() []assessment.Assessment {
	idx := map[string]int{}
	for i, a := range s.assessments {
		if j, ok := idx[a.ProductID]; !ok || !newer(s.assessments[j], a) {
			idx[a.ProductID] = i
		}
	}
	out := make([]assessment.Assessment, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.withSeller(s.assessments[i]))
	}
	return out
}

func (s *Store) withSeller(a assessment.Assessment) assessment.Assessment {
	if p, ok := s.products[a.ProductID]; ok {
		a.SellerID = p.SellerID
	}
	return a
}
