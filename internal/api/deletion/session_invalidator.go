package deletion

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TokenRevoker revokes every refresh token of a user.
type TokenRevoker interface {
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)
}

// SubjectDenylist refuses still-valid access tokens of a subject.
type SubjectDenylist interface {
	Revoke(userID string)
}

type SessionInvalidator struct {
	logger   *slog.Logger
	tokens   TokenRevoker
	denylist SubjectDenylist
}

// NewSessionInvalidator builds an invalidator. denylist may be nil.
func NewSessionInvalidator(tokens TokenRevoker, denylist SubjectDenylist, logger *slog.Logger) *SessionInvalidator {
	return &SessionInvalidator{
		logger:   logger,
		tokens:   tokens,
		denylist: denylist,
	}
}

// InvalidateSessions revokes refresh tokens and blocks outstanding access tokens.
// It reports false on failure and never returns an error.
func (s *SessionInvalidator) InvalidateSessions(ctx context.Context, userID uuid.UUID) bool {
	ctx, span := otel.Tracer("SessionInvalidator").Start(ctx, "InvalidateSessions", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := s.logger.With(slog.String("method", "InvalidateSessions"), slog.String("userID", userID.String()))

	// Access tokens are blocked even if the refresh token store is down.
	if s.denylist != nil {
		s.denylist.Revoke(userID.String())
	}

	n, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to revoke refresh tokens", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "revoke failed")
		return false
	}

	l.InfoContext(ctx, "Sessions invalidated", slog.Int64("revoked_tokens", n))
	span.SetStatus(codes.Ok, "invalidated")
	return true
}
