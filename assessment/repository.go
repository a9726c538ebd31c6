package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"marketflow/catalog"
	"marketflow/db"
)

var ErrNotFound = errors.New("assessment: not found")

type Repository interface {
	Create(ctx context.Context, productID string, at time.Time) (Assessment, error)
	// CreateProduct inserts a product and its first assessment as one unit.
	CreateProduct(ctx context.Context, params catalog.CreateParams, at time.Time) (catalog.Product, Assessment, error)
	Latest(ctx context.Context, productID string) (Assessment, error)
	ApplyTransition(ctx context.Context, params TransitionParams) (TransitionResult, error)
	List(ctx context.Context, filters Filters) ([]Assessment, int, error)
	Notes(ctx context.Context, assessmentID string) ([]Note, error)
	Stale(ctx context.Context, status Status, before time.Time, limit int) ([]Assessment, error)
}

// PGRepository stores assessments and their audit tables in PostgreSQL.
// Multi-step writes run inside a single transaction.
type PGRepository struct {
	pool db.Conn
}

func NewRepository(pool db.Conn) *PGRepository {
	return &PGRepository{pool: pool}
}

var noteTables = map[NoteKind]string{
	NoteApproval:  "assessment_approvals",
	NoteRejection: "assessment_rejections",
	NoteRevision:  "assessment_revisions",
	NoteLogistics: "assessment_logistics",
}

const latestAssessments = `
	SELECT DISTINCT ON (a.product_id)
	       a.id, a.product_id, p.seller_id, a.status, a.submitted_at, a.verified_at,
	       a.revision_requested_at, a.created_at, a.updated_at
	FROM product_assessments a
	JOIN products p ON p.id = a.product_id
	ORDER BY a.product_id, a.submitted_at DESC, a.created_at DESC`

const assessmentColumns = `id::text, product_id::text, seller_id::text, status::text, submitted_at, verified_at, revision_requested_at, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, productID string, at time.Time) (Assessment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Assessment{}, fmt.Errorf("assessment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var sellerID string
	if err := tx.QueryRow(ctx, `SELECT seller_id::text FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&sellerID); err != nil {
		if db.IsNotFound(err) {
			return Assessment{}, catalog.ErrNotFound
		}
		return Assessment{}, fmt.Errorf("assessment: lock product: %w", err)
	}

	a, err := insertAssessment(ctx, tx, productID, sellerID, at)
	if err != nil {
		return Assessment{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE products SET approval_status = 'pending', updated_at = $2 WHERE id = $1`, productID, at); err != nil {
		return Assessment{}, fmt.Errorf("assessment: reset product approval: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Assessment{}, fmt.Errorf("assessment: commit create: %w", err)
	}
	return a, nil
}

func (r *PGRepository) CreateProduct(ctx context.Context, params catalog.CreateParams, at time.Time) (catalog.Product, Assessment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return catalog.Product{}, Assessment{}, fmt.Errorf("assessment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := catalog.NewRepository(tx).Create(ctx, params, at)
	if err != nil {
		return catalog.Product{}, Assessment{}, err
	}
	a, err := insertAssessment(ctx, tx, p.ID, p.SellerID, at)
	if err != nil {
		return catalog.Product{}, Assessment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return catalog.Product{}, Assessment{}, fmt.Errorf("assessment: commit product: %w", err)
	}
	return p, a, nil
}

func insertAssessment(ctx context.Context, q db.Querier, productID, sellerID string, at time.Time) (Assessment, error) {
	a := Assessment{ProductID: productID, SellerID: sellerID}
	var status string
	if err := q.QueryRow(ctx, `
		INSERT INTO product_assessments (product_id, status, submitted_at, created_at, updated_at)
		VALUES ($1, 'pending_digital_review', $2, $2, $2)
		RETURNING id::text, status::text, submitted_at, created_at, updated_at
	`, productID, at).Scan(&a.ID, &status, &a.SubmittedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Assessment{}, fmt.Errorf("assessment: insert: %w", err)
	}
	a.Status = Status(status)
	return a, nil
}

func (r *PGRepository) Latest(ctx context.Context, productID string) (Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM (` + latestAssessments + `) latest WHERE product_id = $1`

	a, err := scanAssessment(r.pool.QueryRow(ctx, query, productID))
	if err != nil {
		if db.IsNotFound(err) {
			return Assessment{}, ErrNotFound
		}
		return Assessment{}, fmt.Errorf("assessment: latest: %w", err)
	}
	return a, nil
}

// ApplyTransition locks the product's latest assessment, updates its status,
// writes the audit note and mirrors the approval status onto the product.
// Nothing is committed unless every step succeeds.
func (r *PGRepository) ApplyTransition(ctx context.Context, params TransitionParams) (TransitionResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("assessment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The product lock serializes against Create, so the latest row read
	// below cannot be superseded before commit.
	lock, err := tx.Exec(ctx, `SELECT 1 FROM products WHERE id = $1 FOR UPDATE`, params.ProductID)
	if err != nil {
		if db.IsInvalidText(err) {
			return TransitionResult{}, ErrNotFound
		}
		return TransitionResult{}, fmt.Errorf("assessment: lock product: %w", err)
	}
	if lock.RowsAffected() == 0 {
		return TransitionResult{}, ErrNotFound
	}

	current, err := scanAssessment(tx.QueryRow(ctx, `
		SELECT a.id::text, a.product_id::text, p.seller_id::text, a.status::text, a.submitted_at,
		       a.verified_at, a.revision_requested_at, a.created_at, a.updated_at
		FROM product_assessments a
		JOIN products p ON p.id = a.product_id
		WHERE a.product_id = $1
		ORDER BY a.submitted_at DESC, a.created_at DESC
		LIMIT 1
		FOR UPDATE OF a
	`, params.ProductID))
	if err != nil {
		if db.IsNotFound(err) {
			return TransitionResult{}, ErrNotFound
		}
		return TransitionResult{}, fmt.Errorf("assessment: fetch current status: %w", err)
	}

	if params.Guard != nil {
		if err := params.Guard(current.Status, params.Next); err != nil {
			return TransitionResult{}, err
		}
	}

	next := current
	var status string
	if err := tx.QueryRow(ctx, `
		UPDATE product_assessments
		SET status = $2::assessment_status,
		    verified_at = CASE WHEN $3::boolean THEN $5::timestamptz ELSE verified_at END,
		    revision_requested_at = CASE WHEN $4::boolean THEN $5::timestamptz ELSE revision_requested_at END,
		    updated_at = $5
		WHERE id = $1
		RETURNING status::text, verified_at, revision_requested_at, updated_at
	`, current.ID, string(params.Next), params.Next == StatusVerified, params.Next == StatusForRevision, params.At).
		Scan(&status, &next.VerifiedAt, &next.RevisionRequestedAt, &next.UpdatedAt); err != nil {
		return TransitionResult{}, fmt.Errorf("assessment: update status: %w", err)
	}
	next.Status = Status(status)

	if params.Note != nil {
		table, ok := noteTables[params.Note.Kind]
		if !ok {
			return TransitionResult{}, fmt.Errorf("assessment: unknown note kind %q", params.Note.Kind)
		}
		var noteID string
		if err := tx.QueryRow(ctx, `
			INSERT INTO `+table+` (assessment_id, description, created_by, created_at)
			VALUES ($1, $2, $3::uuid, $4)
			RETURNING id::text
		`, current.ID, params.Note.Description, params.Note.CreatedBy, params.At).Scan(&noteID); err != nil {
			return TransitionResult{}, fmt.Errorf("assessment: insert %s note: %w", params.Note.Kind, err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE products SET approval_status = $2::approval_status, updated_at = $3
		WHERE id = $1
	`, params.ProductID, string(params.Next.Approval()), params.At)
	if err != nil {
		return TransitionResult{}, fmt.Errorf("assessment: mirror product approval: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return TransitionResult{}, catalog.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return TransitionResult{}, fmt.Errorf("assessment: commit transition: %w", err)
	}

	return TransitionResult{Previous: current.Status, Assessment: next}, nil
}

func (r *PGRepository) List(ctx context.Context, filters Filters) ([]Assessment, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	query := `
		SELECT ` + assessmentColumns + `
		FROM (` + latestAssessments + `) latest
		WHERE ($1 = '' OR status::text = $1)
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, string(filters.Status), filters.PageSize, (filters.Page-1)*filters.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("assessment: list: %w", err)
	}
	items, err := collectAssessments(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM (` + latestAssessments + `) latest WHERE ($1 = '' OR status::text = $1)`
	if err := r.pool.QueryRow(ctx, countQuery, string(filters.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("assessment: count: %w", err)
	}
	return items, total, nil
}

func (r *PGRepository) Notes(ctx context.Context, assessmentID string) ([]Note, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, assessment_id::text, 'approval', description, created_by::text, created_at FROM assessment_approvals WHERE assessment_id = $1
		UNION ALL
		SELECT id::text, assessment_id::text, 'rejection', description, created_by::text, created_at FROM assessment_rejections WHERE assessment_id = $1
		UNION ALL
		SELECT id::text, assessment_id::text, 'revision', description, created_by::text, created_at FROM assessment_revisions WHERE assessment_id = $1
		UNION ALL
		SELECT id::text, assessment_id::text, 'logistics', description, created_by::text, created_at FROM assessment_logistics WHERE assessment_id = $1
		ORDER BY created_at ASC
	`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("assessment: list notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var (
			n    Note
			kind string
		)
		if err := rows.Scan(&n.ID, &n.AssessmentID, &kind, &n.Description, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("assessment: scan note: %w", err)
		}
		n.Kind = NoteKind(kind)
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assessment: iterate notes: %w", err)
	}
	return notes, nil
}

func (r *PGRepository) Stale(ctx context.Context, status Status, before time.Time, limit int) ([]Assessment, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT ` + assessmentColumns + `
		FROM (` + latestAssessments + `) latest
		WHERE status::text = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, string(status), before, limit)
	if err != nil {
		return nil, fmt.Errorf("assessment: stale: %w", err)
	}
	return collectAssessments(rows)
}

func collectAssessments(rows pgx.Rows) ([]Assessment, error) {
	defer rows.Close()
	items := []Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("assessment: scan: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("assessment: iterate: %w", err)
	}
	return items, nil
}

func scanAssessment(row pgx.Row) (Assessment, error) {
	var (
		a      Assessment
		status string
	)
	if err := row.Scan(&a.ID, &a.ProductID, &a.SellerID, &status, &a.SubmittedAt, &a.VerifiedAt,
		&a.RevisionRequestedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Assessment{}, err
	}
	a.Status = Status(status)
	return a, nil
}
