package support

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"marketflow/db"
)

var (
	ErrNotFound     = errors.New("support: ticket not found")
	ErrForbidden    = errors.New("support: forbidden")
	ErrBadStatus    = errors.New("support: invalid status transition")
	ErrInvalidInput = errors.New("support: invalid input")
)

type Repository interface {
	Create(ctx context.Context, params CreateParams, at time.Time) (Ticket, error)
	Get(ctx context.Context, id string) (Ticket, error)
	List(ctx context.Context, filters ListFilters) ([]Ticket, error)
	// Resolve moves an open ticket to resolved. A ticket that is already
	// resolved yields ErrBadStatus.
	Resolve(ctx context.Context, id string, at time.Time) (Ticket, error)
}

type PGRepository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *PGRepository {
	return &PGRepository{pool: pool}
}

const ticketColumns = `id::text, user_id::text, subject, body, status::text, created_at, updated_at, resolved_at`

func (r *PGRepository) Create(ctx context.Context, params CreateParams, at time.Time) (Ticket, error) {
	const query = `
		INSERT INTO support_tickets (user_id, subject, body, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'open', $4, $4)
		RETURNING ` + ticketColumns

	t, err := scanTicket(r.pool.QueryRow(ctx, query, params.UserID, params.Subject, params.Body, at))
	if err != nil {
		return Ticket{}, fmt.Errorf("support: create: %w", err)
	}
	return t, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Ticket, error) {
	t, err := scanTicket(r.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, fmt.Errorf("support: get: %w", err)
	}
	return t, nil
}

func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets WHERE TRUE`
	args := []any{}
	if filters.UserID != "" {
		args = append(args, filters.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		query += fmt.Sprintf(" AND status = $%d::ticket_status", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("support: list: %w", err)
	}
	defer rows.Close()

	out := make([]Ticket, 0, 8)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("support: scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("support: iterate: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Resolve(ctx context.Context, id string, at time.Time) (Ticket, error) {
	const query = `
		UPDATE support_tickets
		SET status = 'resolved', resolved_at = $2, updated_at = $2
		WHERE id = $1 AND status <> 'resolved'
		RETURNING ` + ticketColumns

	t, err := scanTicket(r.pool.QueryRow(ctx, query, id, at))
	if err == nil {
		return t, nil
	}
	if !db.IsNotFound(err) {
		return Ticket{}, fmt.Errorf("support: resolve: %w", err)
	}

	var status Status
	if err := r.pool.QueryRow(ctx, `SELECT status::text FROM support_tickets WHERE id = $1`, id).Scan(&status); err != nil {
		if db.IsNotFound(err) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, fmt.Errorf("support: resolve fetch: %w", err)
	}
	return Ticket{}, ErrBadStatus
}

func scanTicket(row pgx.Row) (Ticket, error) {
	var (
		t      Ticket
		status string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Body, &status, &t.CreatedAt, &t.UpdatedAt, &t.ResolvedAt); err != nil {
		return Ticket{}, err
	}
	t.Status = Status(status)
	return t, nil
}
