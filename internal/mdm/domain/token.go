package domain

import "time"

// IssuedToken models the stored session token record in the DB. The bearer
// string itself is a signed JWT; this row tracks its revocation state by jti.
type IssuedToken struct {
	ID        string // jti claim of the minted JWT
	AccountID string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Session is what the token endpoint returns to the client.
type Session struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
