package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/go-identity-service/config"
	"github.com/FACorreiaa/go-identity-service/internal/types"
)

// TokenIssuer signs access tokens. It is a pure function of the user, the clock,
// the id source and the signing key; the latter three are fixed at construction.
type TokenIssuer struct {
	secretKey []byte
	issuer    string
	audience  string
	ttl       time.Duration
	now       func() time.Time
	newID     func() string
}

// TokenIssuerOption customizes a TokenIssuer.
type TokenIssuerOption func(*TokenIssuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenIssuerOption {
	return func(t *TokenIssuer) { t.now = now }
}

// WithIDSource replaces the uuid jti generator.
func WithIDSource(newID func() string) TokenIssuerOption {
	return func(t *TokenIssuer) { t.newID = newID }
}

func NewTokenIssuer(cfg config.JWTConfig, opts ...TokenIssuerOption) (*TokenIssuer, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("jwt secret key cannot be empty")
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	t := &TokenIssuer{
		secretKey: []byte(cfg.SecretKey),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		ttl:       cfg.AccessTokenTTL,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TTL is the lifetime of every issued access token.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// IssueAccessToken builds and signs an HS256 access token for user.
func (t *TokenIssuer) IssueAccessToken(user *types.User) (types.AccessToken, error) {
	if user == nil {
		return types.AccessToken{}, errors.New("issue access token: nil user")
	}

	// JWT NumericDate has second precision.
	issuedAt := t.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(t.ttl)

	stamp := ""
	if user.SecurityStamp != nil {
		stamp = *user.SecurityStamp
	}

	claims := types.Claims{
		Name:          user.Username,
		Email:         user.Email,
		GivenName:     user.FirstName,
		FamilyName:    user.LastName,
		Role:          user.Role,
		SecurityStamp: stamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ID:        t.newID(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    t.issuer,
		},
	}
	if t.audience != "" {
		claims.Audience = jwt.ClaimStrings{t.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secretKey)
	if err != nil {
		return types.AccessToken{}, fmt.Errorf("sign access token: %w", err)
	}
	return types.AccessToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// ParseAccessToken verifies signature, algorithm, issuer, audience and expiry.
func (t *TokenIssuer) ParseAccessToken(tokenString string) (*types.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}

	claims := &types.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
