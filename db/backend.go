package db

import (
	"context"
	"database/sql"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"souqmarket/catalog"
	"souqmarket/config"
	"souqmarket/farmer"
	"souqmarket/order"
)

var log = logging.Logger("db")

// Backend bundles the repositories of one store. Both drivers satisfy the
// same repository contracts.
type Backend struct {
	Driver   string
	Farmers  farmer.Repository
	Products catalog.Repository
	Orders   order.Repository

	pool   *pgxpool.Pool
	sqlite *sql.DB
}

// Open connects to the store selected by cfg and applies migrations.
func Open(ctx context.Context, cfg config.StorageConfig) (*Backend, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Infow("store ready", "driver", cfg.Driver)
		return NewPostgresBackend(pool), nil

	case config.DriverSQLite, "":
		conn, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := MigrateSQLite(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
		log.Infow("store ready", "driver", config.DriverSQLite, "path", cfg.SQLitePath)
		return NewSQLiteBackend(conn), nil

	default:
		return nil, fmt.Errorf("db: unknown storage driver %q", cfg.Driver)
	}
}

// NewPostgresBackend wires the Postgres repositories around an open pool.
func NewPostgresBackend(pool *pgxpool.Pool) *Backend {
	return &Backend{
		Driver:   config.DriverPostgres,
		Farmers:  farmer.NewRepository(pool),
		Products: catalog.NewRepository(pool),
		Orders:   order.NewRepository(pool),
		pool:     pool,
	}
}

// NewSQLiteBackend wires the SQLite repositories around an open database.
func NewSQLiteBackend(conn *sql.DB) *Backend {
	return &Backend{
		Driver:   config.DriverSQLite,
		Farmers:  farmer.NewSQLiteRepository(conn),
		Products: catalog.NewSQLiteRepository(conn),
		Orders:   order.NewSQLiteRepository(conn),
		sqlite:   conn,
	}
}

// Ping checks that the store is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.pool != nil {
		return b.pool.Ping(ctx)
	}
	if b.sqlite != nil {
		return b.sqlite.PingContext(ctx)
	}
	return fmt.Errorf("db: backend not open")
}

// Pool returns the Postgres pool, or nil for other drivers.
func (b *Backend) Pool() *pgxpool.Pool {
	return b.pool
}

// SQLite returns the SQLite handle, or nil for other drivers.
func (b *Backend) SQLite() *sql.DB {
	return b.sqlite
}

// Close releases the underlying connections.
func (b *Backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.sqlite != nil {
		if err := b.sqlite.Close(); err != nil {
			log.Warnw("close sqlite", "error", err)
		}
	}
}
