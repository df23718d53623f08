package main

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity represents a registered user account
type Identity struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
}

// Bookmark is the protected resource. OwnerID is set once at creation
// from the authenticated identity and never reassigned.
type Bookmark struct {
	ID          int64
	OwnerID     int64
	Title       string
	URL         string
	Description string
	IsPublic    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RevocationEntry records a refresh token jti invalidated by logout.
// Entries are insert-only; pruning removes entries whose token has
// passed its natural expiry anyway.
type RevocationEntry struct {
	JTI       string
	RevokedAt time.Time
}

// tokenClaims is the claim set carried by both token types. Refresh
// tokens additionally carry a jti (RegisteredClaims.ID) used as the
// revocation key.
type tokenClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
}

// TokenPair is returned on login and registration
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
