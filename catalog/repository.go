package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"marketflow/db"
)

// ErrNotFound signals the requested product does not exist.
var ErrNotFound = errors.New("catalog: product not found")

var ErrInvalidInput = errors.New("catalog: invalid input")

type Repository interface {
	Create(ctx context.Context, params CreateParams, at time.Time) (Product, error)
	GetByID(ctx context.Context, id string) (Product, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Product, error)
}

// PGRepository reads and writes products in PostgreSQL.
type PGRepository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *PGRepository {
	return &PGRepository{pool: pool}
}

const productColumns = `id::text, seller_id::text, name, approval_status::text, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, params CreateParams, at time.Time) (Product, error) {
	const query = `
		INSERT INTO products (seller_id, name, approval_status, created_at, updated_at)
		VALUES ($1, $2, 'pending', $3, $3)
		RETURNING ` + productColumns

	p, err := scanProduct(r.pool.QueryRow(ctx, query, params.SellerID, params.Name, at))
	if err != nil {
		return Product{}, fmt.Errorf("catalog: create product: %w", err)
	}
	return p, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNotFound(err) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: get product: %w", err)
	}
	return p, nil
}

func (r *PGRepository) ListBySeller(ctx context.Context, sellerID string) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE seller_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, sellerID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, 8)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate products: %w", err)
	}
	return products, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.ApprovalStatus, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
