// Package admin guards operator endpoints with a single shared secret.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("admin")

// ErrUnauthorized signals a missing or wrong admin secret.
var ErrUnauthorized = errors.New("admin: unauthorized")

// DefaultHeader carries the admin secret on each request.
const DefaultHeader = "X-Admin-Password"

// Gate checks presented secrets against the configured one.
type Gate struct {
	secret []byte
	header string
}

// NewGate creates a gate. An empty header falls back to DefaultHeader.
func NewGate(secret, header string) *Gate {
	if header == "" {
		header = DefaultHeader
	}
	return &Gate{secret: []byte(secret), header: header}
}

// Header returns the request header the gate reads.
func (g *Gate) Header() string {
	return g.header
}

// Check compares presented with the configured secret in constant time.
func (g *Gate) Check(presented string) error {
	if presented == "" || len(g.secret) == 0 {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(presented), g.secret) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Middleware rejects requests that do not carry the admin secret.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Check(r.Header.Get(g.header)); err != nil {
			log.Debugw("admin request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
