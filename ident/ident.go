// Package ident generates the public identifiers used across the marketplace:
// prefixed record ids, product slugs and session tokens.
package ident

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Prefixes keep identifiers self-describing in logs and URLs.
const (
	PrefixFarmer  = "far"
	PrefixProduct = "prd"
	PrefixSlug    = "p"
	PrefixOrder   = "ord"
	PrefixSession = "sess"
)

const tokenBytes = 32

// New returns "<prefix>_" followed by 12 lowercase hex characters taken from
// the random portion of a version 4 UUID.
func New(prefix string) string {
	u := uuid.New()
	return prefix + "_" + hex.EncodeToString(u[:6])
}

// Token returns an opaque, URL-safe session token carrying 256 bits of entropy.
func Token() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ident: read random: %w", err)
	}
	return PrefixSession + "_" + base64.RawURLEncoding.EncodeToString(buf), nil
}
