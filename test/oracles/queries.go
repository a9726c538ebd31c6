package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that must return no rows while the system is consistent.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "unread_counts_match_unread_messages",
			SQL: `SELECT c.id, c.buyer_unread_count, c.seller_unread_count,
                         COUNT(m.id) FILTER (WHERE m.sender_role = 'seller' AND NOT m.is_read) AS buyer_unread,
                         COUNT(m.id) FILTER (WHERE m.sender_role = 'buyer' AND NOT m.is_read) AS seller_unread
                  FROM conversations c
                  LEFT JOIN messages m ON m.conversation_id = c.id
                  GROUP BY c.id
                  HAVING c.buyer_unread_count <> COUNT(m.id) FILTER (WHERE m.sender_role = 'seller' AND NOT m.is_read)
                      OR c.seller_unread_count <> COUNT(m.id) FILTER (WHERE m.sender_role = 'buyer' AND NOT m.is_read)`,
		},
		{
			Name: "approval_mirrors_latest_assessment",
			SQL: `WITH latest AS (
                      SELECT DISTINCT ON (product_id) product_id, status
                      FROM product_assessments
                      ORDER BY product_id, submitted_at DESC, created_at DESC)
                  SELECT p.id, p.approval_status, l.status
                  FROM products p JOIN latest l ON l.product_id = p.id
                  WHERE p.approval_status <> CASE l.status
                      WHEN 'verified' THEN 'approved'::approval_status
                      WHEN 'rejected' THEN 'rejected'::approval_status
                      ELSE 'pending'::approval_status END`,
		},
		{
			Name: "verified_has_timestamp",
			SQL:  `SELECT id FROM product_assessments WHERE status = 'verified' AND verified_at IS NULL`,
		},
		{
			Name: "revision_has_timestamp",
			SQL:  `SELECT id FROM product_assessments WHERE status = 'for_revision' AND revision_requested_at IS NULL`,
		},
		{
			Name: "rejection_has_note",
			SQL: `SELECT a.id FROM product_assessments a
                  WHERE a.status = 'rejected'
                    AND NOT EXISTS (SELECT 1 FROM assessment_rejections r WHERE r.assessment_id = a.id)`,
		},
	}
}

// Run executes every oracle and returns the first failing one with a sample
// row, or an empty name when all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
