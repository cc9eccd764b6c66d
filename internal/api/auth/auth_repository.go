package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	database "github.com/FACorreiaa/go-identity-service/app/db"
	"github.com/FACorreiaa/go-identity-service/internal/types"
)

var _ RefreshTokenStore = (*PostgresRefreshTokenStore)(nil)

// RefreshTokenStore persists refresh tokens and enforces a single active token per user.
type RefreshTokenStore interface {
	// IssueRefreshToken revokes every active token of userID, then mints and stores a new one.
	IssueRefreshToken(ctx context.Context, userID uuid.UUID) (*types.RefreshToken, error)
	// Rotate redeems oldToken exactly once: it is revoked and linked to the new
	// token in the same transaction that stores the replacement. A token that is
	// no longer active yields types.ErrTokenRevoked.
	Rotate(ctx context.Context, userID uuid.UUID, oldToken string) (*types.RefreshToken, error)
	// Revoke marks token revoked and links it to replacedBy. Unknown tokens are not an error.
	Revoke(ctx context.Context, token string, replacedBy *string) error
	// RevokeAll revokes every active token of userID and returns how many were revoked.
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)
	// GetByToken returns the row even when expired or revoked.
	GetByToken(ctx context.Context, token string) (*types.RefreshToken, error)
	// ListForUser returns the user's tokens, newest first.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]types.RefreshToken, error)
}

type PostgresRefreshTokenStore struct {
	logger *slog.Logger
	pgpool database.Pool
	ttl    time.Duration
	now    func() time.Time
}

func NewPostgresRefreshTokenStore(pgpool database.Pool, refreshTokenTTL time.Duration, logger *slog.Logger) *PostgresRefreshTokenStore {
	return &PostgresRefreshTokenStore{
		logger: logger,
		pgpool: pgpool,
		ttl:    refreshTokenTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

const refreshTokenBytes = 32

// generateRefreshToken returns an opaque url-safe token from crypto/rand.
func generateRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, types.ErrStorage, err)
}

func (r *PostgresRefreshTokenStore) IssueRefreshToken(ctx context.Context, userID uuid.UUID) (*types.RefreshToken, error) {
	ctx, span := otel.Tracer("RefreshTokenStore").Start(ctx, "IssueRefreshToken", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "refresh_tokens"),
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "IssueRefreshToken"), slog.String("userID", userID.String()))

	token, err := generateRefreshToken()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token generation failed")
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return nil, storageErr("issue refresh token: begin", err)
	}
	defer func() {
		// No-op once committed.
		_ = tx.Rollback(ctx)
	}()

	if err = lockUser(ctx, tx, userID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			l.WarnContext(ctx, "Refresh token requested for unknown user")
			span.SetStatus(codes.Error, "user not found")
			return nil, fmt.Errorf("issue refresh token: %w", err)
		}
		l.ErrorContext(ctx, "Failed to lock user row", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock failed")
		return nil, storageErr("issue refresh token: lock user", err)
	}

	now := r.now()
	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1
		 WHERE user_id = $2 AND revoked_at IS NULL`,
		now, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to revoke active refresh tokens", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "revoke failed")
		return nil, storageErr("issue refresh token: revoke active", err)
	}

	rt, err := r.insertToken(ctx, tx, token, userID, now)
	if err != nil {
		l.ErrorContext(ctx, "Failed to store refresh token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		l.ErrorContext(ctx, "Failed to commit refresh token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, storageErr("issue refresh token: commit", err)
	}

	l.DebugContext(ctx, "Refresh token issued", slog.Int64("revoked", tag.RowsAffected()))
	span.SetStatus(codes.Ok, "refresh token issued")
	return rt, nil
}

// lockUser takes the user row lock that serializes every issuance and rotation
// for that user.
func lockUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	var locked int
	err := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.ErrNotFound
	}
	return err
}

func (r *PostgresRefreshTokenStore) insertToken(ctx context.Context, tx pgx.Tx, token string, userID uuid.UUID, now time.Time) (*types.RefreshToken, error) {
	rt := &types.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(r.ttl),
		CreatedAt: now,
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		rt.Token, rt.UserID, rt.ExpiresAt, rt.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, types.ErrConflict
		}
		return nil, storageErr("insert", err)
	}
	return rt, nil
}

func (r *PostgresRefreshTokenStore) Rotate(ctx context.Context, userID uuid.UUID, oldToken string) (*types.RefreshToken, error) {
	ctx, span := otel.Tracer("RefreshTokenStore").Start(ctx, "Rotate", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "refresh_tokens"),
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "Rotate"), slog.String("userID", userID.String()))

	token, err := generateRefreshToken()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token generation failed")
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	tx, err := r.pgpool.Begin(ctx)
	if err != nil {
		l.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return nil, storageErr("rotate refresh token: begin", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err = lockUser(ctx, tx, userID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			span.SetStatus(codes.Error, "user not found")
			return nil, fmt.Errorf("rotate refresh token: %w", err)
		}
		l.ErrorContext(ctx, "Failed to lock user row", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock failed")
		return nil, storageErr("rotate refresh token: lock user", err)
	}

	// Only one caller can flip an active token; the loser sees zero rows.
	now := r.now()
	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1, replaced_by_token = $2
		 WHERE token = $3 AND user_id = $4 AND revoked_at IS NULL`,
		now, token, oldToken, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to redeem refresh token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "redeem failed")
		return nil, storageErr("rotate refresh token: redeem", err)
	}
	if tag.RowsAffected() != 1 {
		l.WarnContext(ctx, "Refresh token already redeemed or revoked")
		span.SetStatus(codes.Error, "already redeemed")
		return nil, fmt.Errorf("rotate refresh token: %w", types.ErrTokenRevoked)
	}

	rt, err := r.insertToken(ctx, tx, token, userID, now)
	if err != nil {
		l.ErrorContext(ctx, "Failed to store rotated refresh token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		l.ErrorContext(ctx, "Failed to commit rotated refresh token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		return nil, storageErr("rotate refresh token: commit", err)
	}

	span.SetStatus(codes.Ok, "rotated")
	return rt, nil
}

// Revoke keeps the original revocation time of an already-revoked token and
// only overwrites the replacement link when one is given, so replays are harmless.
func (r *PostgresRefreshTokenStore) Revoke(ctx context.Context, token string, replacedBy *string) error {
	ctx, span := otel.Tracer("RefreshTokenStore").Start(ctx, "Revoke", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "refresh_tokens"),
		attribute.Bool("replaced", replacedBy != nil),
	))
	defer span.End()

	tag, err := r.pgpool.Exec(ctx,
		`UPDATE refresh_tokens
		 SET revoked_at = COALESCE(revoked_at, $1),
		     replaced_by_token = COALESCE($2, replaced_by_token)
		 WHERE token = $3`,
		r.now(), replacedBy, token)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to revoke refresh token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return storageErr("revoke refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.DebugContext(ctx, "Revoke requested for unknown refresh token")
	}
	span.SetStatus(codes.Ok, "revoked")
	return nil
}

func (r *PostgresRefreshTokenStore) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, span := otel.Tracer("RefreshTokenStore").Start(ctx, "RevokeAll", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "refresh_tokens"),
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	tag, err := r.pgpool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $1
		 WHERE user_id = $2 AND revoked_at IS NULL`,
		r.now(), userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to revoke all refresh tokens",
			slog.String("userID", userID.String()), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return 0, storageErr("revoke all refresh tokens", err)
	}
	span.SetStatus(codes.Ok, "revoked")
	return tag.RowsAffected(), nil
}

const refreshTokenColumns = `token, user_id, expires_at, created_at, revoked_at, replaced_by_token`

func scanRefreshToken(row pgx.Row) (*types.RefreshToken, error) {
	var rt types.RefreshToken
	err := row.Scan(&rt.Token, &rt.UserID, &rt.ExpiresAt, &rt.CreatedAt, &rt.RevokedAt, &rt.ReplacedByToken)
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *PostgresRefreshTokenStore) GetByToken(ctx context.Context, token string) (*types.RefreshToken, error) {
	ctx, span := otel.Tracer("RefreshTokenStore").Start(ctx, "GetByToken", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "refresh_tokens"),
	))
	defer span.End()

	rt, err := scanRefreshToken(r.pgpool.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, fmt.Errorf("get refresh token: %w", types.ErrNotFound)
		}
		r.logger.ErrorContext(ctx, "Failed to load refresh token", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, storageErr("get refresh token", err)
	}
	span.SetStatus(codes.Ok, "found")
	return rt, nil
}

func (r *PostgresRefreshTokenStore) ListForUser(ctx context.Context, userID uuid.UUID) ([]types.RefreshToken, error) {
	ctx, span := otel.Tracer("RefreshTokenStore").Start(ctx, "ListForUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "refresh_tokens"),
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	rows, err := r.pgpool.Query(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list refresh tokens", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, storageErr("list refresh tokens", err)
	}
	defer rows.Close()

	tokens := make([]types.RefreshToken, 0)
	for rows.Next() {
		rt, err := scanRefreshToken(rows)
		if err != nil {
			span.RecordError(err)
			return nil, storageErr("list refresh tokens: scan", err)
		}
		tokens = append(tokens, *rt)
	}
	if err = rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rows failed")
		return nil, storageErr("list refresh tokens: rows", err)
	}
	span.SetStatus(codes.Ok, "listed")
	return tokens, nil
}
