package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements Repository on a single-file SQLite database.
// Images are stored as a JSON array and timestamps as Unix milliseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed product repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ListPublic returns visible products, newest first.
func (r *SQLiteRepository) ListPublic(ctx context.Context, f Filter, limit int) ([]Product, error) {
	where := []string{publicPredicate}
	args := []any{}

	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.City != "" {
		where = append(where, "city = ?")
		args = append(args, f.City)
	}
	if f.Query != "" {
		// ulower is registered by db.OpenSQLite; LIKE alone folds ASCII only.
		where = append(where, `(ulower(title_fr) LIKE ulower(?) ESCAPE '\' OR ulower(title_ar) LIKE ulower(?) ESCAPE '\'
			OR ulower(description_fr) LIKE ulower(?) ESCAPE '\' OR ulower(description_ar) LIKE ulower(?) ESCAPE '\')`)
		pattern := likePattern(f.Query)
		args = append(args, pattern, pattern, pattern, pattern)
	}

	args = append(args, limit)
	query := `SELECT ` + productColumns + ` FROM products WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ?`
	return r.queryProducts(ctx, "list public", query, args...)
}

// GetPublicBySlug retrieves a visible product.
func (r *SQLiteRepository) GetPublicBySlug(ctx context.Context, slug string) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE slug = ? AND ` + publicPredicate
	p, err := scanSQLiteProduct(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: get public: %w", err)
	}
	return p, nil
}

// ListApprovedByFarmer returns the farmer's approved, active products.
func (r *SQLiteRepository) ListApprovedByFarmer(ctx context.Context, farmerID string, limit int) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE farmer_id = ? AND source = 'farmer' AND status = 'approved' AND is_active
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	return r.queryProducts(ctx, "list approved by farmer", query, farmerID, limit)
}

// ListOwnedByFarmer returns every farmer-submitted product of the farmer.
func (r *SQLiteRepository) ListOwnedByFarmer(ctx context.Context, farmerID string, limit int) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE farmer_id = ? AND source = 'farmer'
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	return r.queryProducts(ctx, "list owned", query, farmerID, limit)
}

// ListPending returns products awaiting moderation with farmer contact details.
func (r *SQLiteRepository) ListPending(ctx context.Context, limit int) ([]PendingProduct, error) {
	const query = `
		SELECT p.id, p.slug, p.title_fr, p.title_ar, p.category, p.city, p.price_mad, p.weight_kg, p.age_months,
			p.gender, p.certified, p.delivery, p.images, p.description_fr, p.description_ar, p.is_active,
			p.farmer_id, p.status, p.source, p.created_at,
			COALESCE(f.name, ''), COALESCE(f.phone, '')
		FROM products p
		LEFT JOIN farmers f ON f.id = p.farmer_id
		WHERE p.source = 'farmer' AND p.status = 'pending' AND p.is_active
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list pending: %w", err)
	}
	defer rows.Close()

	list := []PendingProduct{}
	for rows.Next() {
		var pp PendingProduct
		p, err := scanSQLiteProduct(rows, &pp.FarmerName, &pp.FarmerPhone)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan pending: %w", err)
		}
		pp.Product = p
		list = append(list, pp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list pending: %w", err)
	}
	return list, nil
}

// Create inserts a new product.
func (r *SQLiteRepository) Create(ctx context.Context, p Product) error {
	_, err := r.insert(ctx, p, "")
	return err
}

// CreateSeed inserts a seed product, skipping existing slugs.
func (r *SQLiteRepository) CreateSeed(ctx context.Context, p Product) (bool, error) {
	return r.insert(ctx, p, "ON CONFLICT (slug) DO NOTHING")
}

func (r *SQLiteRepository) insert(ctx context.Context, p Product, onConflict string) (bool, error) {
	images, err := json.Marshal(p.Images)
	if err != nil {
		return false, fmt.Errorf("catalog: encode images: %w", err)
	}

	query := `INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ` + onConflict

	var weight, age any
	if p.WeightKg != nil {
		weight = *p.WeightKg
	}
	if p.AgeMonths != nil {
		age = *p.AgeMonths
	}

	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.Slug, p.TitleFR, p.TitleAR, p.Category, p.City, p.PriceMAD, weight, age,
		nullString(p.Gender), p.Certified, p.Delivery, string(images), p.DescriptionFR, p.DescriptionAR,
		p.IsActive, nullString(p.FarmerID), string(p.Status), string(p.Source), p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return false, ErrDuplicateSlug
		}
		return false, fmt.Errorf("catalog: insert product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("catalog: insert product: %w", err)
	}
	return n == 1, nil
}

// GetBySlug retrieves a product in any state.
func (r *SQLiteRepository) GetBySlug(ctx context.Context, slug string) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE slug = ?`
	p, err := scanSQLiteProduct(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: get by slug: %w", err)
	}
	return p, nil
}

// UpdateStatus performs a compare-and-set on the product status.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, slug string, from, to Status, deactivate bool) error {
	const query = `
		UPDATE products
		SET status = ?, is_active = CASE WHEN ? THEN 0 ELSE is_active END
		WHERE slug = ? AND source = 'farmer' AND status = ?
	`
	res, err := r.db.ExecContext(ctx, query, string(to), deactivate, slug, string(from))
	if err != nil {
		return fmt.Errorf("catalog: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: update status: %w", err)
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *SQLiteRepository) queryProducts(ctx context.Context, op, query string, args ...any) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", op, err)
	}
	defer rows.Close()

	list := []Product{}
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", op, err)
	}
	return list, nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProduct(row sqlScanner, extra ...any) (Product, error) {
	var (
		p         Product
		weight    sql.NullFloat64
		ageMonths sql.NullInt64
		gender    sql.NullString
		images    string
		farmerID  sql.NullString
		status    sql.NullString
		source    string
		createdAt int64
	)
	dest := []any{
		&p.ID, &p.Slug, &p.TitleFR, &p.TitleAR, &p.Category, &p.City, &p.PriceMAD, &weight, &ageMonths,
		&gender, &p.Certified, &p.Delivery, &images, &p.DescriptionFR, &p.DescriptionAR, &p.IsActive,
		&farmerID, &status, &source, &createdAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Product{}, err
	}

	if weight.Valid {
		w := weight.Float64
		p.WeightKg = &w
	}
	if ageMonths.Valid {
		m := int(ageMonths.Int64)
		p.AgeMonths = &m
	}
	p.Gender = gender.String
	p.FarmerID = farmerID.String
	if status.Valid {
		p.Status = normalizeStatus(&status.String)
	} else {
		p.Status = normalizeStatus(nil)
	}
	p.Source = Source(source)
	p.CreatedAt = time.UnixMilli(createdAt).UTC()

	p.Images = []string{}
	if err := json.Unmarshal([]byte(images), &p.Images); err != nil {
		log.Warnw("unreadable product images", "slug", p.Slug, "error", err)
		p.Images = []string{}
	}
	return p, nil
}
