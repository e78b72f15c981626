package farmer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that the farmer does not exist.
	ErrNotFound = errors.New("farmer: not found")
	// ErrDuplicatePhone signals that the phone number is already registered.
	ErrDuplicatePhone = errors.New("farmer: phone already registered")
	// ErrSessionNotFound signals an unknown session token.
	ErrSessionNotFound = errors.New("farmer: session not found")
)

// Repository handles data access for farmers and their sessions.
type Repository interface {
	// CreateWithSession inserts the farmer and its first session atomically.
	CreateWithSession(ctx context.Context, f Farmer, s Session) error
	GetByPhone(ctx context.Context, phone string) (Farmer, error)
	GetByID(ctx context.Context, id string) (Farmer, error)
	UpdatePasswordHash(ctx context.Context, id string, hash PasswordHash) error
	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, token string) (Session, error)
	DeleteSession(ctx context.Context, token string) error
	// DeleteExpiredSessions removes the farmer's sessions whose expiry is at or
	// before now and reports how many were removed.
	DeleteExpiredSessions(ctx context.Context, farmerID string, now time.Time) (int64, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed farmer repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateWithSession inserts a farmer and its first session in one transaction.
func (r *PGRepository) CreateWithSession(ctx context.Context, f Farmer, s Session) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("farmer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertFarmer = `
		INSERT INTO farmers (id, phone, name, city, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(ctx, insertFarmer, f.ID, f.Phone, f.Name, f.City, f.PasswordHash.Encode(), f.IsActive, f.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "farmers_phone_key" {
			return ErrDuplicatePhone
		}
		return fmt.Errorf("farmer: insert farmer: %w", err)
	}

	if err := insertSession(ctx, tx, s); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("farmer: commit: %w", err)
	}
	return nil
}

// GetByPhone retrieves a farmer by phone number.
func (r *PGRepository) GetByPhone(ctx context.Context, phone string) (Farmer, error) {
	const query = `
		SELECT id, phone, name, city, password_hash, is_active, created_at
		FROM farmers
		WHERE phone = $1
	`
	f, err := scanFarmer(r.pool.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Farmer{}, ErrNotFound
		}
		return Farmer{}, fmt.Errorf("farmer: get by phone: %w", err)
	}
	return f, nil
}

// GetByID retrieves a farmer by ID.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Farmer, error) {
	const query = `
		SELECT id, phone, name, city, password_hash, is_active, created_at
		FROM farmers
		WHERE id = $1
	`
	f, err := scanFarmer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Farmer{}, ErrNotFound
		}
		return Farmer{}, fmt.Errorf("farmer: get by id: %w", err)
	}
	return f, nil
}

// UpdatePasswordHash replaces the stored hash, used when rotating algorithms.
func (r *PGRepository) UpdatePasswordHash(ctx context.Context, id string, hash PasswordHash) error {
	tag, err := r.pool.Exec(ctx, `UPDATE farmers SET password_hash = $1 WHERE id = $2`, hash.Encode(), id)
	if err != nil {
		return fmt.Errorf("farmer: update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSession stores a new session.
func (r *PGRepository) CreateSession(ctx context.Context, s Session) error {
	return insertSession(ctx, r.pool, s)
}

// GetSession retrieves a session by token.
func (r *PGRepository) GetSession(ctx context.Context, token string) (Session, error) {
	const query = `
		SELECT token, farmer_id, created_at, expires_at
		FROM farmer_sessions
		WHERE token = $1
	`
	var s Session
	err := r.pool.QueryRow(ctx, query, token).Scan(&s.Token, &s.FarmerID, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("farmer: get session: %w", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = expiresAtUTC(s.ExpiresAt)
	return s, nil
}

// DeleteSession removes the session row; deleting an unknown token is not an error.
func (r *PGRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM farmer_sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("farmer: delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes the farmer's sessions that expired at or before now.
func (r *PGRepository) DeleteExpiredSessions(ctx context.Context, farmerID string, now time.Time) (int64, error) {
	const query = `
		DELETE FROM farmer_sessions
		WHERE farmer_id = $1 AND expires_at IS NOT NULL AND expires_at <= $2
	`
	tag, err := r.pool.Exec(ctx, query, farmerID, now)
	if err != nil {
		return 0, fmt.Errorf("farmer: delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertSession(ctx context.Context, db execer, s Session) error {
	const query = `
		INSERT INTO farmer_sessions (token, farmer_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := db.Exec(ctx, query, s.Token, s.FarmerID, s.CreatedAt, s.ExpiresAt); err != nil {
		return fmt.Errorf("farmer: insert session: %w", err)
	}
	return nil
}

func scanFarmer(row pgx.Row) (Farmer, error) {
	var (
		f       Farmer
		encoded string
	)
	if err := row.Scan(&f.ID, &f.Phone, &f.Name, &f.City, &encoded, &f.IsActive, &f.CreatedAt); err != nil {
		return Farmer{}, err
	}
	f.PasswordHash = decodeStoredHash(f.ID, encoded)
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

// decodeStoredHash never fails: an undecodable hash yields the zero value,
// which no password verifies against.
func decodeStoredHash(farmerID, encoded string) PasswordHash {
	hash, err := ParsePasswordHash(encoded)
	if err != nil {
		log.Warnf("farmer %s has an undecodable password hash: %v", farmerID, err)
		return PasswordHash{}
	}
	return hash
}

func expiresAtUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
