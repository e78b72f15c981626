package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that no product matches the lookup.
	ErrNotFound = errors.New("catalog: not found")
	// ErrDuplicateSlug signals a slug collision on insert.
	ErrDuplicateSlug = errors.New("catalog: slug already exists")
	// ErrStaleStatus signals that a compare-and-set status update found the
	// row in a different state than expected.
	ErrStaleStatus = errors.New("catalog: status changed concurrently")
)

// Repository handles data access for products.
type Repository interface {
	ListPublic(ctx context.Context, f Filter, limit int) ([]Product, error)
	GetPublicBySlug(ctx context.Context, slug string) (Product, error)
	ListApprovedByFarmer(ctx context.Context, farmerID string, limit int) ([]Product, error)
	ListOwnedByFarmer(ctx context.Context, farmerID string, limit int) ([]Product, error)
	ListPending(ctx context.Context, limit int) ([]PendingProduct, error)
	Create(ctx context.Context, p Product) error
	// CreateSeed inserts p unless its slug already exists and reports whether
	// a row was written.
	CreateSeed(ctx context.Context, p Product) (bool, error)
	// GetBySlug returns the product regardless of status or visibility.
	GetBySlug(ctx context.Context, slug string) (Product, error)
	// UpdateStatus moves a farmer product from one status to another. When
	// deactivate is set is_active is cleared in the same statement; otherwise
	// it is left untouched.
	UpdateStatus(ctx context.Context, slug string, from, to Status, deactivate bool) error
}

const productColumns = `id, slug, title_fr, title_ar, category, city, price_mad, weight_kg, age_months, gender,
	certified, delivery, images, description_fr, description_ar, is_active, farmer_id, status, source, created_at`

// publicPredicate is the visibility rule shared by every buyer-facing read.
const publicPredicate = `is_active AND (status IS NULL OR status = 'approved')`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed product repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListPublic returns visible products, newest first.
func (r *PGRepository) ListPublic(ctx context.Context, f Filter, limit int) ([]Product, error) {
	where := []string{publicPredicate}
	args := []any{}

	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.City != "" {
		args = append(args, f.City)
		where = append(where, fmt.Sprintf("city = $%d", len(args)))
	}
	if f.Query != "" {
		args = append(args, likePattern(f.Query))
		n := len(args)
		where = append(where, fmt.Sprintf(
			`(title_fr ILIKE $%[1]d ESCAPE '\' OR title_ar ILIKE $%[1]d ESCAPE '\' OR description_fr ILIKE $%[1]d ESCAPE '\' OR description_ar ILIKE $%[1]d ESCAPE '\')`, n))
	}

	args = append(args, limit)
	query := fmt.Sprintf(`SELECT %s FROM products WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		productColumns, strings.Join(where, " AND "), len(args))

	return r.queryProducts(ctx, "list public", query, args...)
}

// GetPublicBySlug retrieves a visible product.
func (r *PGRepository) GetPublicBySlug(ctx context.Context, slug string) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE slug = $1 AND ` + publicPredicate
	p, err := scanProduct(r.pool.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: get public: %w", err)
	}
	return p, nil
}

// ListApprovedByFarmer returns the farmer's approved, active products.
func (r *PGRepository) ListApprovedByFarmer(ctx context.Context, farmerID string, limit int) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE farmer_id = $1 AND source = 'farmer' AND status = 'approved' AND is_active
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	return r.queryProducts(ctx, "list approved by farmer", query, farmerID, limit)
}

// ListOwnedByFarmer returns every farmer-submitted product of the farmer.
func (r *PGRepository) ListOwnedByFarmer(ctx context.Context, farmerID string, limit int) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE farmer_id = $1 AND source = 'farmer'
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	return r.queryProducts(ctx, "list owned", query, farmerID, limit)
}

// ListPending returns products awaiting moderation with farmer contact details.
func (r *PGRepository) ListPending(ctx context.Context, limit int) ([]PendingProduct, error) {
	const query = `
		SELECT p.id, p.slug, p.title_fr, p.title_ar, p.category, p.city, p.price_mad, p.weight_kg, p.age_months,
			p.gender, p.certified, p.delivery, p.images, p.description_fr, p.description_ar, p.is_active,
			p.farmer_id, p.status, p.source, p.created_at,
			COALESCE(f.name, ''), COALESCE(f.phone, '')
		FROM products p
		LEFT JOIN farmers f ON f.id = p.farmer_id
		WHERE p.source = 'farmer' AND p.status = 'pending' AND p.is_active
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list pending: %w", err)
	}
	defer rows.Close()

	list := []PendingProduct{}
	for rows.Next() {
		var pp PendingProduct
		p, err := scanProduct(rows, &pp.FarmerName, &pp.FarmerPhone)
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
func (r *PGRepository) Create(ctx context.Context, p Product) error {
	_, err := r.insert(ctx, p, "")
	return err
}

// CreateSeed inserts a seed product, skipping existing slugs.
func (r *PGRepository) CreateSeed(ctx context.Context, p Product) (bool, error) {
	return r.insert(ctx, p, "ON CONFLICT (slug) DO NOTHING")
}

func (r *PGRepository) insert(ctx context.Context, p Product, onConflict string) (bool, error) {
	query := `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20) ` + onConflict

	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.Slug, p.TitleFR, p.TitleAR, p.Category, p.City, p.PriceMAD, p.WeightKg, p.AgeMonths,
		nullString(p.Gender), p.Certified, p.Delivery, p.Images, p.DescriptionFR, p.DescriptionAR,
		p.IsActive, nullString(p.FarmerID), string(p.Status), string(p.Source), p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, ErrDuplicateSlug
		}
		return false, fmt.Errorf("catalog: insert product: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetBySlug retrieves a product in any state.
func (r *PGRepository) GetBySlug(ctx context.Context, slug string) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE slug = $1`
	p, err := scanProduct(r.pool.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: get by slug: %w", err)
	}
	return p, nil
}

// UpdateStatus performs a compare-and-set on the product status.
func (r *PGRepository) UpdateStatus(ctx context.Context, slug string, from, to Status, deactivate bool) error {
	const query = `
		UPDATE products
		SET status = $1, is_active = CASE WHEN $2 THEN FALSE ELSE is_active END
		WHERE slug = $3 AND source = 'farmer' AND status = $4
	`
	tag, err := r.pool.Exec(ctx, query, string(to), deactivate, slug, string(from))
	if err != nil {
		return fmt.Errorf("catalog: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *PGRepository) queryProducts(ctx context.Context, op, query string, args ...any) ([]Product, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", op, err)
	}
	defer rows.Close()

	list := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
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

func scanProduct(row pgx.Row, extra ...any) (Product, error) {
	var (
		p         Product
		ageMonths *int32
		gender    *string
		farmerID  *string
		status    *string
		source    string
	)
	dest := []any{
		&p.ID, &p.Slug, &p.TitleFR, &p.TitleAR, &p.Category, &p.City, &p.PriceMAD, &p.WeightKg, &ageMonths,
		&gender, &p.Certified, &p.Delivery, &p.Images, &p.DescriptionFR, &p.DescriptionAR, &p.IsActive,
		&farmerID, &status, &source, &p.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Product{}, err
	}

	if ageMonths != nil {
		m := int(*ageMonths)
		p.AgeMonths = &m
	}
	if gender != nil {
		p.Gender = *gender
	}
	if farmerID != nil {
		p.FarmerID = *farmerID
	}
	p.Status = normalizeStatus(status)
	p.Source = Source(source)
	p.CreatedAt = p.CreatedAt.UTC()
	if p.Images == nil {
		p.Images = []string{}
	}
	return p, nil
}

// normalizeStatus treats a missing status as approved; rows written before
// moderation existed carry none.
func normalizeStatus(s *string) Status {
	if s == nil || *s == "" {
		return StatusApproved
	}
	return Status(*s)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// likePattern wraps q for a substring match with LIKE wildcards escaped.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}
