package domain

import (
	"context"
	"time"
)

// Participant is the already-authenticated caller identity. Account creation
// and sessions are handled elsewhere; the engine only reads the directory to
// address notifications and emails.
type Participant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ParticipantRepository defines read access to the participant directory.
type ParticipantRepository interface {
	GetByID(ctx context.Context, id string) (*Participant, error)
}

// AuthClaims is the verified identity extracted from a bearer token.
type AuthClaims struct {
	UserID string
	Roles  []string
}

// IsAdmin reports whether the claims carry the admin role.
func (c *AuthClaims) IsAdmin() bool {
	for _, r := range c.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

// TokenVerifier verifies a bearer token and returns the caller's claims.
type TokenVerifier interface {
	Verify(token string) (*AuthClaims, error)
}
