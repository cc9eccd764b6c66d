package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-identity-service/config"
	"github.com/FACorreiaa/go-identity-service/internal/types"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		SecretKey:        "test-access-secret",
		Issuer:           "test-issuer",
		Audience:         "test-audience",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenDays: 7,
	}
}

func newTestIssuer(t *testing.T, now time.Time) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(testJWTConfig(),
		WithClock(func() time.Time { return now }),
		WithIDSource(func() string { return "jti-1" }),
	)
	require.NoError(t, err)
	return issuer
}

func testUser() *types.User {
	return &types.User{
		ID:        uuid.MustParse("8a4c1f6e-2d1b-4b7a-9a53-0f3c2b1d5e77"),
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		FirstName: "Jane",
		LastName:  "Doe",
		Role:      types.RoleAdmin,
		IsActive:  true,
	}
}

func decodePayload(t *testing.T, token string) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

func TestIssueAccessToken_Claims(t *testing.T) {
	issuer := newTestIssuer(t, fixedNow)
	user := testUser()

	tok, err := issuer.IssueAccessToken(user)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(15*time.Minute), tok.ExpiresAt)

	payload := decodePayload(t, tok.Token)
	assert.Equal(t, user.ID.String(), payload["sub"])
	assert.Equal(t, "jdoe", payload["name"])
	assert.Equal(t, "jdoe@example.com", payload["email"])
	assert.Equal(t, "Jane", payload["given_name"])
	assert.Equal(t, "Doe", payload["family_name"])
	assert.Equal(t, "Admin", payload["role"])
	assert.Equal(t, "jti-1", payload["jti"])
	assert.EqualValues(t, fixedNow.Unix(), payload["iat"])
	assert.EqualValues(t, fixedNow.Add(15*time.Minute).Unix(), payload["exp"])

	stamp, present := payload["security_stamp"]
	assert.True(t, present, "security_stamp must always be present")
	assert.Equal(t, "", stamp)
}

func TestIssueAccessToken_SecurityStamp(t *testing.T) {
	issuer := newTestIssuer(t, fixedNow)
	user := testUser()
	stamp := "stamp-42"
	user.SecurityStamp = &stamp

	tok, err := issuer.IssueAccessToken(user)
	require.NoError(t, err)
	assert.Equal(t, "stamp-42", decodePayload(t, tok.Token)["security_stamp"])
}

func TestIssueAccessToken_UniqueIDs(t *testing.T) {
	issuer, err := NewTokenIssuer(testJWTConfig(), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	first, err := issuer.IssueAccessToken(testUser())
	require.NoError(t, err)
	second, err := issuer.IssueAccessToken(testUser())
	require.NoError(t, err)
	assert.NotEqual(t, decodePayload(t, first.Token)["jti"], decodePayload(t, second.Token)["jti"])
}

func TestParseAccessToken(t *testing.T) {
	issuer := newTestIssuer(t, fixedNow)
	tok, err := issuer.IssueAccessToken(testUser())
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		claims, err := issuer.ParseAccessToken(tok.Token)
		require.NoError(t, err)
		assert.Equal(t, testUser().ID.String(), claims.Subject)
		assert.Equal(t, types.RoleAdmin, claims.Role)
	})

	t.Run("expired", func(t *testing.T) {
		later := newTestIssuer(t, fixedNow.Add(16*time.Minute))
		_, err := later.ParseAccessToken(tok.Token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong key", func(t *testing.T) {
		cfg := testJWTConfig()
		cfg.SecretKey = "other"
		other, err := NewTokenIssuer(cfg, WithClock(func() time.Time { return fixedNow }))
		require.NoError(t, err)
		_, err = other.ParseAccessToken(tok.Token)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("wrong audience", func(t *testing.T) {
		cfg := testJWTConfig()
		cfg.Audience = "someone-else"
		other, err := NewTokenIssuer(cfg, WithClock(func() time.Time { return fixedNow }))
		require.NoError(t, err)
		_, err = other.ParseAccessToken(tok.Token)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := issuer.ParseAccessToken("not-a-jwt")
		assert.ErrorIs(t, err, jwt.ErrTokenMalformed)
	})
}

func TestNewTokenIssuer_RequiresSecret(t *testing.T) {
	cfg := testJWTConfig()
	cfg.SecretKey = ""
	_, err := NewTokenIssuer(cfg)
	assert.Error(t, err)
}

func TestRevokedSubjects(t *testing.T) {
	r := NewRevokedSubjects(time.Minute)
	assert.False(t, r.IsRevoked("u1"))
	r.Revoke("u1")
	assert.True(t, r.IsRevoked("u1"))
	assert.False(t, r.IsRevoked("u2"))
}
