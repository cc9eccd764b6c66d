package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-identity-service/app/observability/metrics"
	"github.com/FACorreiaa/go-identity-service/internal/types"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// UserReader is the read side of the user store needed for authentication.
type UserReader interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
}

// AccessTokenIssuer signs access tokens. *TokenIssuer implements it.
type AccessTokenIssuer interface {
	IssueAccessToken(user *types.User) (types.AccessToken, error)
}

type AuthService interface {
	Login(ctx context.Context, email, password string) (*types.TokenPair, error)
	// Refresh redeems a refresh token once: the presented token is revoked and
	// linked to its replacement atomically, and a new access token is signed.
	Refresh(ctx context.Context, refreshToken string) (*types.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error)
	ListRefreshTokens(ctx context.Context, userID uuid.UUID) ([]types.RefreshToken, error)
}

type AuthServiceImpl struct {
	logger *slog.Logger
	users  UserReader
	store  RefreshTokenStore
	issuer AccessTokenIssuer
	now    func() time.Time
}

func NewAuthService(users UserReader, store RefreshTokenStore, issuer AccessTokenIssuer, logger *slog.Logger) *AuthServiceImpl {
	return &AuthServiceImpl{
		logger: logger,
		users:  users,
		store:  store,
		issuer: issuer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (*types.TokenPair, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Login")
	defer span.End()

	l := s.logger.With(slog.String("method", "Login"))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			l.InfoContext(ctx, "Login attempt for unknown email")
			span.SetStatus(codes.Error, "invalid credentials")
			return nil, fmt.Errorf("invalid credentials: %w", types.ErrUnauthenticated)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		return nil, fmt.Errorf("error fetching user: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		l.InfoContext(ctx, "Login attempt with wrong password", slog.String("userID", user.ID.String()))
		span.SetStatus(codes.Error, "invalid credentials")
		return nil, fmt.Errorf("invalid credentials: %w", types.ErrUnauthenticated)
	}
	if !user.IsActive {
		l.InfoContext(ctx, "Login attempt for inactive user", slog.String("userID", user.ID.String()))
		span.SetStatus(codes.Error, "inactive user")
		return nil, fmt.Errorf("user is inactive: %w", types.ErrUnauthenticated)
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		l.ErrorContext(ctx, "Failed to issue tokens", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "token issuance failed")
		return nil, err
	}

	l.InfoContext(ctx, "User logged in", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "logged in")
	return pair, nil
}

func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (*types.TokenPair, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Refresh")
	defer span.End()

	l := s.logger.With(slog.String("method", "Refresh"))

	current, err := s.store.GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			span.SetStatus(codes.Error, "unknown refresh token")
			return nil, fmt.Errorf("unknown refresh token: %w", types.ErrUnauthenticated)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, fmt.Errorf("error fetching refresh token: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", current.UserID.String()))

	if !current.IsActive() {
		l.WarnContext(ctx, "Revoked refresh token presented", slog.String("userID", current.UserID.String()))
		span.SetStatus(codes.Error, "revoked")
		return nil, types.ErrTokenRevoked
	}
	if current.IsExpired(s.now()) {
		span.SetStatus(codes.Error, "expired")
		return nil, types.ErrTokenExpired
	}

	user, err := s.users.GetUserByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			span.SetStatus(codes.Error, "user gone")
			return nil, fmt.Errorf("refresh token owner not found: %w", types.ErrUnauthenticated)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		return nil, fmt.Errorf("error fetching user: %w", err)
	}
	if !user.IsActive {
		span.SetStatus(codes.Error, "inactive user")
		return nil, fmt.Errorf("user is inactive: %w", types.ErrUnauthenticated)
	}

	// Rotate is the single-use gate; the checks above only classify the failure.
	rt, err := s.store.Rotate(ctx, user.ID, current.Token)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrTokenRevoked):
			l.WarnContext(ctx, "Refresh token redeemed concurrently", slog.String("userID", user.ID.String()))
			span.SetStatus(codes.Error, "revoked")
			return nil, types.ErrTokenRevoked
		case errors.Is(err, types.ErrNotFound):
			span.SetStatus(codes.Error, "user gone")
			return nil, fmt.Errorf("refresh token owner not found: %w", types.ErrUnauthenticated)
		}
		l.ErrorContext(ctx, "Failed to rotate refresh token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "rotation failed")
		return nil, fmt.Errorf("error rotating refresh token: %w", err)
	}
	metrics.Get().RefreshTokensIssuedTotal.Add(ctx, 1)
	s.recordRevoked(ctx, 1, "rotation")

	pair, err := s.signPair(ctx, user, rt)
	if err != nil {
		l.ErrorContext(ctx, "Failed to sign access token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "signing failed")
		return nil, err
	}

	l.InfoContext(ctx, "Refresh token rotated", slog.String("userID", user.ID.String()))
	span.SetStatus(codes.Ok, "rotated")
	return pair, nil
}

func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "Logout")
	defer span.End()

	if err := s.store.Revoke(ctx, refreshToken, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "revoke failed")
		return fmt.Errorf("error revoking refresh token: %w", err)
	}
	s.recordRevoked(ctx, 1, "logout")
	span.SetStatus(codes.Ok, "logged out")
	return nil
}

func (s *AuthServiceImpl) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "LogoutAll", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	n, err := s.store.RevokeAll(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "revoke all failed")
		return 0, fmt.Errorf("error revoking refresh tokens: %w", err)
	}
	s.recordRevoked(ctx, n, "logout_all")
	s.logger.InfoContext(ctx, "All refresh tokens revoked",
		slog.String("userID", userID.String()), slog.Int64("revoked", n))
	span.SetStatus(codes.Ok, "revoked")
	return n, nil
}

func (s *AuthServiceImpl) ListRefreshTokens(ctx context.Context, userID uuid.UUID) ([]types.RefreshToken, error) {
	ctx, span := otel.Tracer("AuthService").Start(ctx, "ListRefreshTokens", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	tokens, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, fmt.Errorf("error listing refresh tokens: %w", err)
	}
	span.SetStatus(codes.Ok, "listed")
	return tokens, nil
}

func (s *AuthServiceImpl) issuePair(ctx context.Context, user *types.User) (*types.TokenPair, error) {
	rt, err := s.store.IssueRefreshToken(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("error issuing refresh token: %w", err)
	}
	metrics.Get().RefreshTokensIssuedTotal.Add(ctx, 1)
	return s.signPair(ctx, user, rt)
}

func (s *AuthServiceImpl) signPair(ctx context.Context, user *types.User, rt *types.RefreshToken) (*types.TokenPair, error) {
	at, err := s.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("error signing access token: %w", err)
	}
	metrics.Get().AccessTokensIssuedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("role", string(user.Role))))

	return &types.TokenPair{
		AccessToken:  at.Token,
		RefreshToken: rt.Token,
		ExpiresAt:    at.ExpiresAt,
	}, nil
}

func (s *AuthServiceImpl) recordRevoked(ctx context.Context, n int64, reason string) {
	if n <= 0 {
		return
	}
	metrics.Get().RefreshTokensRevokedTotal.Add(ctx, n,
		metric.WithAttributes(attribute.String("reason", reason)))
}
