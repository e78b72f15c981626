package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteRepository implements Repository on a single-file SQLite database.
// The database is expected to be opened with _txlock=immediate so that each
// order transaction takes the write lock before its first read.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed order repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// WithinTx runs fn inside one transaction.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("order: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("order: commit: %w", err)
	}
	return nil
}

// List returns orders newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Order, error) {
	const query = `
		SELECT id, customer_name, phone, city, address, COALESCE(notes, ''), items, subtotal_mad, status, created_at
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	defer rows.Close()

	list := []Order{}
	for rows.Next() {
		var (
			o         Order
			items     string
			createdAt int64
		)
		c := &o.Customer
		if err := rows.Scan(&o.ID, &c.Name, &c.Phone, &c.City, &c.Address, &c.Notes, &items, &o.SubtotalMAD, &o.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("order: scan: %w", err)
		}
		o.Items = decodeLines(o.ID, []byte(items))
		o.CreatedAt = time.UnixMilli(createdAt).UTC()
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	return list, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LookupPublic(ctx context.Context, slug string) (PricedProduct, error) {
	const query = `
		SELECT slug, title_fr, title_ar, price_mad
		FROM products
		WHERE slug = ? AND is_active AND (status IS NULL OR status = 'approved')
	`
	var p PricedProduct
	err := t.tx.QueryRowContext(ctx, query, slug).Scan(&p.Slug, &p.TitleFR, &p.TitleAR, &p.PriceMAD)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PricedProduct{}, ErrProductUnavailable
		}
		return PricedProduct{}, fmt.Errorf("order: lookup product: %w", err)
	}
	return p, nil
}

func (t *sqliteTx) Insert(ctx context.Context, o Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("order: encode items: %w", err)
	}

	const query = `
		INSERT INTO orders (id, customer_name, phone, city, address, notes, items, subtotal_mad, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	c := o.Customer
	if _, err := t.tx.ExecContext(ctx, query, o.ID, c.Name, c.Phone, c.City, c.Address, nullString(c.Notes), string(items), o.SubtotalMAD, o.Status, o.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("order: insert: %w", err)
	}
	return nil
}
