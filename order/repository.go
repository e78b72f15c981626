package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrProductUnavailable signals that a slug does not resolve to a public product.
var ErrProductUnavailable = errors.New("order: product unavailable")

// Tx is the transactional view used while pricing and persisting one order.
type Tx interface {
	// LookupPublic resolves a currently public product. On Postgres the row is
	// share-locked until the transaction ends.
	LookupPublic(ctx context.Context, slug string) (PricedProduct, error)
	Insert(ctx context.Context, o Order) error
}

// Repository handles data access for orders.
type Repository interface {
	// WithinTx runs fn in one transaction, committing when fn returns nil.
	WithinTx(ctx context.Context, fn func(Tx) error) error
	List(ctx context.Context, limit int) ([]Order, error)
}

const lookupPublicSQL = `
	SELECT slug, title_fr, title_ar, price_mad
	FROM products
	WHERE slug = $1 AND is_active AND (status IS NULL OR status = 'approved')
	FOR SHARE
`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed order repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// WithinTx runs fn inside a read-committed transaction.
func (r *PGRepository) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("order: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("order: commit: %w", err)
	}
	return nil
}

// List returns orders newest first.
func (r *PGRepository) List(ctx context.Context, limit int) ([]Order, error) {
	const query = `
		SELECT id, customer_name, phone, city, address, COALESCE(notes, ''), items, subtotal_mad, status, created_at
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	defer rows.Close()

	list := []Order{}
	for rows.Next() {
		var (
			o     Order
			items []byte
		)
		c := &o.Customer
		if err := rows.Scan(&o.ID, &c.Name, &c.Phone, &c.City, &c.Address, &c.Notes, &items, &o.SubtotalMAD, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("order: scan: %w", err)
		}
		o.Items = decodeLines(o.ID, items)
		o.CreatedAt = o.CreatedAt.UTC()
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	return list, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LookupPublic(ctx context.Context, slug string) (PricedProduct, error) {
	var p PricedProduct
	err := t.tx.QueryRow(ctx, lookupPublicSQL, slug).Scan(&p.Slug, &p.TitleFR, &p.TitleAR, &p.PriceMAD)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PricedProduct{}, ErrProductUnavailable
		}
		return PricedProduct{}, fmt.Errorf("order: lookup product: %w", err)
	}
	return p, nil
}

func (t *pgTx) Insert(ctx context.Context, o Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("order: encode items: %w", err)
	}

	const query = `
		INSERT INTO orders (id, customer_name, phone, city, address, notes, items, subtotal_mad, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	c := o.Customer
	if _, err := t.tx.Exec(ctx, query, o.ID, c.Name, c.Phone, c.City, c.Address, nullString(c.Notes), string(items), o.SubtotalMAD, o.Status, o.CreatedAt); err != nil {
		return fmt.Errorf("order: insert: %w", err)
	}
	return nil
}

// decodeLines parses a stored item snapshot. A corrupt snapshot is logged and
// yields no lines rather than failing the whole listing.
func decodeLines(orderID string, raw []byte) []Line {
	lines := []Line{}
	if err := json.Unmarshal(raw, &lines); err != nil {
		log.Warnw("unreadable order items", "order_id", orderID, "error", err)
		return []Line{}
	}
	return lines
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
