package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that must return no rows while the marketplace is
// consistent.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_closed_products_inactive",
			SQL: `SELECT slug, status FROM products
                  WHERE status IN ('rejected','deleted') AND is_active`,
		},
		{
			Name: "O2_seed_rows_approved_unowned",
			SQL: `SELECT slug, status, farmer_id FROM products
                  WHERE source = 'seed'
                    AND (farmer_id IS NOT NULL OR COALESCE(status, 'approved') <> 'approved')`,
		},
		{
			Name: "O3_farmer_rows_owned",
			SQL:  `SELECT slug FROM products WHERE source = 'farmer' AND (farmer_id IS NULL OR status IS NULL)`,
		},
		{
			Name: "O4_order_subtotal",
			SQL: `SELECT o.id, o.subtotal_mad FROM orders o
                  WHERE o.subtotal_mad <> (
                      SELECT COALESCE(SUM((l->>'price_mad')::bigint * (l->>'qty')::bigint), 0)
                      FROM jsonb_array_elements(o.items) l)`,
		},
		{
			Name: "O5_order_lines_bounded",
			SQL: `SELECT o.id FROM orders o WHERE jsonb_array_length(o.items) = 0
                  UNION ALL
                  SELECT o.id FROM orders o, jsonb_array_elements(o.items) l
                  WHERE (l->>'qty')::int NOT BETWEEN 1 AND 10`,
		},
		{
			// A product that is pending or rejected now was never approved,
			// so no order can carry it.
			Name: "O6_order_lines_from_public_catalog",
			SQL: `SELECT o.id, l->>'slug' FROM orders o
                  CROSS JOIN LATERAL jsonb_array_elements(o.items) l
                  LEFT JOIN products p ON p.slug = l->>'slug'
                  WHERE p.id IS NULL
                     OR p.status IN ('pending','rejected')
                     OR p.price_mad <> (l->>'price_mad')::bigint`,
		},
		{
			Name: "O7_sessions_owned",
			SQL: `SELECT s.farmer_id FROM farmer_sessions s
                  LEFT JOIN farmers f ON f.id = s.farmer_id
                  WHERE f.id IS NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
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
