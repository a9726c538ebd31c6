package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"marketflow/db"
)

var (
	ErrNotFound     = errors.New("notification: not found")
	ErrInvalidInput = errors.New("notification: invalid input")
)

type Repository interface {
	Insert(ctx context.Context, n Notification) (Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string, at time.Time) error
}

type PGRepository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *PGRepository {
	return &PGRepository{pool: pool}
}

const notificationColumns = `id::text, user_id::text, type, title, body, product_id::text, read_at, created_at`

func (r *PGRepository) Insert(ctx context.Context, n Notification) (Notification, error) {
	const query = `
		INSERT INTO notifications (user_id, type, title, body, product_id, created_at)
		VALUES ($1, $2, $3, $4, $5::uuid, $6)
		RETURNING ` + notificationColumns

	out, err := scanNotification(r.pool.QueryRow(ctx, query, n.UserID, n.Type, n.Title, n.Body, n.ProductID, n.CreatedAt))
	if err != nil {
		return Notification{}, fmt.Errorf("notification: insert: %w", err)
	}
	return out, nil
}

func (r *PGRepository) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notification: list: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("notification: scan: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notification: iterate: %w", err)
	}
	return out, nil
}

func (r *PGRepository) MarkRead(ctx context.Context, userID, id string, at time.Time) error {
	var marked string
	err := r.pool.QueryRow(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
		RETURNING id::text`, id, userID, at).Scan(&marked)
	if err != nil {
		if db.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("notification: mark read: %w", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.ProductID, &n.ReadAt, &n.CreatedAt); err != nil {
		return Notification{}, err
	}
	return n, nil
}
