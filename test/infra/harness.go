package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"souqmarket/catalog"
	"souqmarket/db"
	"souqmarket/farmer"
	"souqmarket/moderation"
	"souqmarket/order"
)

// Harness owns the lifecycle of the Postgres test database and the services
// wired over it.
type Harness struct {
	Backend    *db.Backend
	Farmers    *farmer.Service
	Catalog    *catalog.Service
	Moderation *moderation.Service
	Orders     *order.Service

	container *PGContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

// NewHarness boots (or reuses) Postgres, applies migrations and wires the
// services the way the API server does.
func NewHarness(ctx context.Context, overrideDSN string) (*Harness, error) {
	pgC, dsn, err := StartPostgres16(ctx, overrideDSN)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	pool, teardown, err := ApplyMigrations(ctx, dsn, pgC.Shared())
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, err
	}

	hasher, err := farmer.NewHasher(farmer.AlgorithmScrypt)
	if err != nil {
		pool.Close()
		_ = teardown(ctx)
		_ = pgC.Terminate(ctx)
		return nil, err
	}

	backend := db.NewPostgresBackend(pool)
	return &Harness{
		Backend:    backend,
		Farmers:    farmer.NewService(backend.Farmers, hasher, 24*time.Hour),
		Catalog:    catalog.NewService(backend.Products),
		Moderation: moderation.NewService(backend.Products),
		Orders:     order.NewService(backend.Orders),
		container:  pgC,
		pool:       pool,
		dsn:        dsn,
		teardown:   teardown,
	}, nil
}

// Pool exposes the configured pgx pool.
func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections (e.g., chaos).
func (h *Harness) DSN() string {
	return h.dsn
}

// Close tears down resources.
func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	_ = h.container.Terminate(ctx)
}

// Reset truncates mutable tables to provide a clean slate between tests.
func (h *Harness) Reset(ctx context.Context) error {
	tables := []string{
		"orders",
		"farmer_sessions",
		"products",
		"farmers",
	}

	tx, err := h.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("reset begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, tbl := range tables {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+tbl+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", tbl, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reset commit: %w", err)
	}

	return nil
}
