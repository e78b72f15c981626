package farmer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements Repository on a single-file SQLite database.
// Timestamps are stored as Unix milliseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed farmer repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateWithSession inserts a farmer and its first session in one transaction.
func (r *SQLiteRepository) CreateWithSession(ctx context.Context, f Farmer, s Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("farmer: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO farmers (id, phone, name, city, password_hash, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Phone, f.Name, f.City, f.PasswordHash.Encode(), f.IsActive, f.CreatedAt.UnixMilli(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(sqliteErr.Error(), "farmers.phone") {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("farmer: insert farmer: %w", err)
	}

	if err := r.insertSession(ctx, tx, s); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("farmer: commit: %w", err)
	}
	return nil
}

// GetByPhone retrieves a farmer by phone number.
func (r *SQLiteRepository) GetByPhone(ctx context.Context, phone string) (Farmer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, phone, name, city, password_hash, is_active, created_at FROM farmers WHERE phone = ?`, phone)
	f, err := scanSQLiteFarmer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Farmer{}, ErrNotFound
		}
		return Farmer{}, fmt.Errorf("farmer: get by phone: %w", err)
	}
	return f, nil
}

// GetByID retrieves a farmer by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (Farmer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, phone, name, city, password_hash, is_active, created_at FROM farmers WHERE id = ?`, id)
	f, err := scanSQLiteFarmer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Farmer{}, ErrNotFound
		}
		return Farmer{}, fmt.Errorf("farmer: get by id: %w", err)
	}
	return f, nil
}

// UpdatePasswordHash replaces the stored hash.
func (r *SQLiteRepository) UpdatePasswordHash(ctx context.Context, id string, hash PasswordHash) error {
	res, err := r.db.ExecContext(ctx, `UPDATE farmers SET password_hash = ? WHERE id = ?`, hash.Encode(), id)
	if err != nil {
		return fmt.Errorf("farmer: update password hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("farmer: update password hash: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSession stores a new session.
func (r *SQLiteRepository) CreateSession(ctx context.Context, s Session) error {
	return r.insertSession(ctx, r.db, s)
}

// GetSession retrieves a session by token.
func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (Session, error) {
	var (
		s         Session
		createdAt int64
		expiresAt sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT token, farmer_id, created_at, expires_at FROM farmer_sessions WHERE token = ?`, token,
	).Scan(&s.Token, &s.FarmerID, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("farmer: get session: %w", err)
	}
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64).UTC()
		s.ExpiresAt = &t
	}
	return s, nil
}

// DeleteSession removes the session row; deleting an unknown token is not an error.
func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM farmer_sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("farmer: delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes the farmer's sessions that expired at or before now.
func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, farmerID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM farmer_sessions WHERE farmer_id = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		farmerID, now.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("farmer: delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepository) insertSession(ctx context.Context, db sqlExecer, s Session) error {
	var expiresAt sql.NullInt64
	if s.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: s.ExpiresAt.UnixMilli(), Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO farmer_sessions (token, farmer_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		s.Token, s.FarmerID, s.CreatedAt.UnixMilli(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("farmer: insert session: %w", err)
	}
	return nil
}

func scanSQLiteFarmer(row *sql.Row) (Farmer, error) {
	var (
		f         Farmer
		encoded   string
		createdAt int64
	)
	if err := row.Scan(&f.ID, &f.Phone, &f.Name, &f.City, &encoded, &f.IsActive, &createdAt); err != nil {
		return Farmer{}, err
	}
	f.PasswordHash = decodeStoredHash(f.ID, encoded)
	f.CreatedAt = time.UnixMilli(createdAt).UTC()
	return f, nil
}
