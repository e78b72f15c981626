package farmer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	logging "github.com/ipfs/go-log/v2"

	"souqmarket/ident"
	"souqmarket/sanitize"
)

var log = logging.Logger("farmer")

var (
	// ErrInvalidInput signals missing or malformed registration fields.
	ErrInvalidInput = errors.New("farmer: invalid input")
	// ErrUnauthorized signals wrong credentials or an unusable session token.
	ErrUnauthorized = errors.New("farmer: unauthorized")
)

const (
	minPasswordLen = 6

	maxNameLen     = 80
	maxPhoneLen    = 40
	maxCityLen     = 80
	maxPasswordLen = 80
)

// Service owns farmer identity, password verification and sessions.
type Service struct {
	repo     Repository
	hasher   *Hasher
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
	newToken func() (string, error)
	// decoy is verified against when the phone is unknown so that both
	// failure paths pay for one key derivation.
	decoy PasswordHash
}

// NewService creates a farmer service. A zero ttl issues sessions that never expire.
func NewService(repo Repository, hasher *Hasher, ttl time.Duration) *Service {
	decoy, err := hasher.Hash("decoy-password")
	if err != nil {
		log.Warnf("decoy hash unavailable: %v", err)
	}
	return &Service{
		repo:     repo,
		hasher:   hasher,
		ttl:      ttl,
		now:      time.Now,
		newID:    func() string { return ident.New(ident.PrefixFarmer) },
		newToken: ident.Token,
		decoy:    decoy,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a farmer account and issues its first session.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (AuthResult, error) {
	name := sanitize.Text(req.Name, maxNameLen)
	phone := sanitize.Text(req.Phone, maxPhoneLen)
	city := sanitize.Text(req.City, maxCityLen)
	password := sanitize.Text(req.Password, maxPasswordLen)

	if name == "" || phone == "" || city == "" {
		return AuthResult{}, fmt.Errorf("%w: name, phone and city are required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return AuthResult{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, err
	}

	now := s.now().UTC()
	f := Farmer{
		ID:           s.newID(),
		Phone:        phone,
		Name:         name,
		City:         city,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
	}
	session, err := s.newSession(f.ID, now)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.repo.CreateWithSession(ctx, f, session); err != nil {
		return AuthResult{}, err
	}

	log.Infow("farmer registered", "farmer_id", f.ID, "city", f.City)
	return AuthResult{Token: session.Token, Farmer: f.Identity()}, nil
}

// Login verifies credentials and issues an additional session. Earlier
// unexpired sessions stay valid; expired ones are removed.
func (s *Service) Login(ctx context.Context, req LoginRequest) (AuthResult, error) {
	phone := sanitize.Text(req.Phone, maxPhoneLen)
	password := sanitize.Text(req.Password, maxPasswordLen)

	f, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.hasher.Verify(password, s.decoy)
			return AuthResult{}, ErrUnauthorized
		}
		return AuthResult{}, err
	}
	if !s.hasher.Verify(password, f.PasswordHash) || !f.IsActive {
		return AuthResult{}, ErrUnauthorized
	}

	if s.hasher.NeedsRehash(f.PasswordHash) {
		s.rehash(ctx, f.ID, password)
	}

	now := s.now().UTC()
	if n, err := s.repo.DeleteExpiredSessions(ctx, f.ID, now); err != nil {
		log.Warnw("expired session sweep failed", "farmer_id", f.ID, "error", err)
	} else if n > 0 {
		log.Debugw("expired sessions removed", "farmer_id", f.ID, "count", n)
	}

	session, err := s.newSession(f.ID, now)
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return AuthResult{}, err
	}

	log.Infow("farmer logged in", "farmer_id", f.ID)
	return AuthResult{Token: session.Token, Farmer: f.Identity()}, nil
}

// Logout destroys the session. Unknown or already deleted tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repo.DeleteSession(ctx, token); err != nil {
		return err
	}
	log.Debugw("session deleted", "token_hash", tokenHash(token))
	return nil
}

// Resolve maps a bearer token to the owning farmer. It reads the store on every
// call.
func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthorized
	}

	session, err := s.repo.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, err
	}
	if session.ExpiresAt != nil && !s.now().Before(*session.ExpiresAt) {
		log.Debugw("session expired", "token_hash", tokenHash(token))
		if err := s.repo.DeleteSession(ctx, token); err != nil {
			log.Warnw("delete expired session failed", "token_hash", tokenHash(token), "error", err)
		}
		return Identity{}, ErrUnauthorized
	}

	f, err := s.repo.GetByID(ctx, session.FarmerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, err
	}
	if !f.IsActive {
		return Identity{}, ErrUnauthorized
	}
	return f.Identity(), nil
}

// PublicProfile returns an active farmer for the public seller page.
func (s *Service) PublicProfile(ctx context.Context, id string) (Farmer, error) {
	if id == "" {
		return Farmer{}, ErrNotFound
	}
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Farmer{}, err
	}
	if !f.IsActive {
		return Farmer{}, ErrNotFound
	}
	return f, nil
}

func (s *Service) newSession(farmerID string, now time.Time) (Session, error) {
	token, err := s.newToken()
	if err != nil {
		return Session{}, err
	}
	session := Session{Token: token, FarmerID: farmerID, CreatedAt: now}
	if s.ttl > 0 {
		exp := now.Add(s.ttl)
		session.ExpiresAt = &exp
	}
	return session, nil
}

// rehash upgrades a verified password to the configured algorithm. Failure is
// logged and the login proceeds with the old hash in place.
func (s *Service) rehash(ctx context.Context, farmerID, password string) {
	upgraded, err := s.hasher.Hash(password)
	if err != nil {
		log.Warnw("rehash failed", "farmer_id", farmerID, "error", err)
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, farmerID, upgraded); err != nil {
		log.Warnw("store rehashed password failed", "farmer_id", farmerID, "error", err)
		return
	}
	log.Infow("password hash upgraded", "farmer_id", farmerID, "algorithm", upgraded.Algorithm)
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
