package farmer

import "time"

// Farmer is a seller account. Rows are never hard-deleted; IsActive=false
// disables login and session resolution.
type Farmer struct {
	ID           string
	Phone        string
	Name         string
	City         string
	PasswordHash PasswordHash
	IsActive     bool
	CreatedAt    time.Time
}

// Identity is the farmer summary attached to an authenticated request.
func (f Farmer) Identity() Identity {
	return Identity{ID: f.ID, Name: f.Name, Phone: f.Phone, City: f.City}
}

// Session binds an opaque bearer token to its owning farmer. ExpiresAt is nil
// when sessions are configured without a TTL.
type Session struct {
	Token     string
	FarmerID  string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// Identity is the public summary of an authenticated farmer.
type Identity struct {
	ID    string
	Name  string
	Phone string
	City  string
}

// RegisterRequest contains farmer registration data supplied by callers.
type RegisterRequest struct {
	Name     string
	Phone    string
	City     string
	Password string
}

// LoginRequest contains farmer login credentials.
type LoginRequest struct {
	Phone    string
	Password string
}

// AuthResult bundles the issued session token with the farmer summary.
type AuthResult struct {
	Token  string
	Farmer Identity
}
