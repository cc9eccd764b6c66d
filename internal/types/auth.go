package types

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the custom claims embedded in every access token.
// SecurityStamp is always serialized, as an empty string when the user has none.
type Claims struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Role          Role   `json:"role"`
	SecurityStamp string `json:"security_stamp"`
	jwt.RegisteredClaims
}

// AccessToken is a signed JWT together with its expiry.
type AccessToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RefreshToken is a persisted opaque refresh token row.
// RevokedAt == nil means the token is active. ReplacedByToken is an audit
// back-reference and is never used for lookup.
type RefreshToken struct {
	Token           string     `json:"token"`
	UserID          uuid.UUID  `json:"user_id"`
	ExpiresAt       time.Time  `json:"expires_at"`
	CreatedAt       time.Time  `json:"created_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	ReplacedByToken *string    `json:"replaced_by_token,omitempty"`
}

// IsActive reports whether the token has not been revoked. Expiry is checked separately.
func (t *RefreshToken) IsActive() bool {
	return t.RevokedAt == nil
}

// IsExpired reports whether the token is past its expiry at instant now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token" example:"eyJhbGciOiJI..."`
	RefreshToken string    `json:"refresh_token" example:"4f1trt8s..."`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LoginRequest represents the expected JSON body for user login.
type LoginRequest struct {
	Email    string `json:"email" example:"user@example.com"`
	Password string `json:"password" example:"password123"`
}

// RefreshTokenRequest carries a refresh token for the refresh and logout endpoints.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" example:"4f1trt8s..."`
}
