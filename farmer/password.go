package farmer

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/scrypt"
)

// Algorithm tags the key-derivation function behind a stored password hash.
type Algorithm string

const (
	AlgorithmScrypt   Algorithm = "scrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
	// AlgorithmBcrypt is accepted for verification only; matching logins are
	// rehashed with the configured algorithm.
	AlgorithmBcrypt Algorithm = "bcrypt"
)

const (
	saltBytes = 16

	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// ErrMalformedHash signals a stored hash that cannot be decoded.
var ErrMalformedHash = errors.New("farmer: malformed password hash")

// PasswordHash is the decoded form of the composite "<algorithm>$<salt>$<key>"
// value stored with each farmer. Salt is kept in its stored textual form and
// its bytes are what the KDF consumes. For bcrypt, Key holds the full bcrypt
// hash and Salt is empty.
type PasswordHash struct {
	Algorithm Algorithm
	Salt      string
	Key       []byte
}

// Encode renders the composite storage form.
func (h PasswordHash) Encode() string {
	if h.Algorithm == AlgorithmBcrypt {
		return string(AlgorithmBcrypt) + "$" + string(h.Key)
	}
	return string(h.Algorithm) + "$" + h.Salt + "$" + hex.EncodeToString(h.Key)
}

// ParsePasswordHash decodes the composite storage form. Unknown algorithm tags
// decode successfully so that the caller can refuse them at verification.
func ParsePasswordHash(s string) (PasswordHash, error) {
	tag, rest, ok := strings.Cut(s, "$")
	if !ok || tag == "" || rest == "" {
		return PasswordHash{}, ErrMalformedHash
	}

	alg := Algorithm(tag)
	if alg == AlgorithmBcrypt {
		return PasswordHash{Algorithm: alg, Key: []byte(rest)}, nil
	}

	salt, keyHex, ok := strings.Cut(rest, "$")
	if !ok || salt == "" || keyHex == "" {
		return PasswordHash{}, ErrMalformedHash
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return PasswordHash{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	return PasswordHash{Algorithm: alg, Salt: salt, Key: key}, nil
}

// Hasher derives and verifies password hashes. New hashes always use the
// configured algorithm; verification accepts every known algorithm.
type Hasher struct {
	algorithm Algorithm
}

// NewHasher returns a hasher producing hashes with alg.
func NewHasher(alg Algorithm) (*Hasher, error) {
	switch alg {
	case AlgorithmScrypt, AlgorithmArgon2id:
		return &Hasher{algorithm: alg}, nil
	default:
		return nil, fmt.Errorf("farmer: unsupported hash algorithm %q", alg)
	}
}

// Algorithm reports the algorithm used for new hashes.
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Hash derives a new hash for password under a fresh random salt.
func (h *Hasher) Hash(password string) (PasswordHash, error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return PasswordHash{}, fmt.Errorf("farmer: generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)

	key, err := derive(h.algorithm, password, salt)
	if err != nil {
		return PasswordHash{}, err
	}
	return PasswordHash{Algorithm: h.algorithm, Salt: salt, Key: key}, nil
}

// Verify reports whether password matches stored. Derived keys are compared
// in constant time.
func (h *Hasher) Verify(password string, stored PasswordHash) bool {
	if stored.Algorithm == AlgorithmBcrypt {
		return bcrypt.CompareHashAndPassword(stored.Key, []byte(password)) == nil
	}
	if len(stored.Key) == 0 {
		return false
	}
	key, err := derive(stored.Algorithm, password, stored.Salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(stored.Key, key) == 1
}

// NeedsRehash reports whether stored was produced by a different algorithm
// than the one configured for new hashes.
func (h *Hasher) NeedsRehash(stored PasswordHash) bool {
	return stored.Algorithm != h.algorithm
}

func derive(alg Algorithm, password, salt string) ([]byte, error) {
	switch alg {
	case AlgorithmScrypt:
		key, err := scrypt.Key([]byte(password), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
		if err != nil {
			return nil, fmt.Errorf("farmer: scrypt: %w", err)
		}
		return key, nil
	case AlgorithmArgon2id:
		return argon2.IDKey([]byte(password), []byte(salt), argon2Time, argon2Memory, argon2Threads, argon2KeyLen), nil
	default:
		return nil, fmt.Errorf("farmer: unsupported hash algorithm %q", alg)
	}
}
