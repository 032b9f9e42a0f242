package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an account in the marketplace. PasswordHash is empty for
// accounts provisioned through an identity provider; OAuthProvider and
// OAuthID are empty for password accounts.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	Role          Role      `json:"role"`
	OAuthProvider string    `json:"-"`
	OAuthID       string    `json:"-"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RefreshToken is a persisted refresh credential. Only the SHA-256 hash of
// the opaque token value is stored; the plaintext exists client-side only.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
}

// Expired reports whether the token is past its expiry.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Revoked reports whether the token has been revoked.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// TokenPair is the result of a successful authentication: a signed session
// JWT plus the plaintext refresh token destined for the response cookie.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}
