package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

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

var _ UserRepo = (*PostgresUserRepo)(nil)

// UserRepo defines the contract for user identity persistence.
type UserRepo interface {
	// GetUserByID returns types.ErrNotFound when no row exists, active or not.
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error)
	GetUserByEmail(ctx context.Context, email string) (*types.User, error)
	// CountActiveSystemAdmins counts active users holding the SystemAdmin role.
	CountActiveSystemAdmins(ctx context.Context) (int, error)
	// DeleteUser physically removes the row. Returns types.ErrNotFound if nothing was deleted.
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

type PostgresUserRepo struct {
	logger *slog.Logger
	pgpool database.Pool
}

func NewPostgresUserRepo(pgpool database.Pool, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger: logger,
		pgpool: pgpool,
	}
}

const userColumns = `id, username, email, first_name, last_name, password_hash,
		       role, is_active, security_stamp, created_at, updated_at`

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&role, &u.IsActive, &u.SecurityStamp, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = types.Role(role)
	return &u, nil
}

func (r *PostgresUserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "GetUserByID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	u, err := scanUser(r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return nil, r.lookupErr(ctx, span, "get user by id", err)
	}
	span.SetStatus(codes.Ok, "User found")
	return u, nil
}

func (r *PostgresUserRepo) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "GetUserByEmail", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	u, err := scanUser(r.pgpool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, r.lookupErr(ctx, span, "get user by email", err)
	}
	span.SetStatus(codes.Ok, "User found")
	return u, nil
}

func (r *PostgresUserRepo) lookupErr(ctx context.Context, span trace.Span, op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		span.SetStatus(codes.Error, "User not found")
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	r.logger.ErrorContext(ctx, "User lookup failed", slog.String("op", op), slog.Any("error", err))
	span.RecordError(err)
	span.SetStatus(codes.Error, "DB query failed")
	return fmt.Errorf("%s: %w: %w", op, types.ErrStorage, err)
}

func (r *PostgresUserRepo) CountActiveSystemAdmins(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "CountActiveSystemAdmins", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()

	var count int
	err := r.pgpool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE role = $1 AND is_active = TRUE`,
		string(types.RoleSystemAdmin)).Scan(&count)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to count active system admins", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB query failed")
		return 0, fmt.Errorf("count active system admins: %w: %w", types.ErrStorage, err)
	}
	span.SetAttributes(attribute.Int("admins.active", count))
	span.SetStatus(codes.Ok, "Counted")
	return count, nil
}

func (r *PostgresUserRepo) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	ctx, span := otel.Tracer("UserRepo").Start(ctx, "DeleteUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", "DELETE"),
		attribute.String("db.sql.table", "users"),
		attribute.String("db.user.id", userID.String()),
	))
	defer span.End()

	l := r.logger.With(slog.String("method", "DeleteUser"), slog.String("userID", userID.String()))

	tag, err := r.pgpool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		l.ErrorContext(ctx, "Failed to delete user", slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "DB delete failed")
		return fmt.Errorf("delete user: %w: %w", types.ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		l.WarnContext(ctx, "No user row deleted")
		span.SetStatus(codes.Error, "User not found")
		return fmt.Errorf("delete user: %w", types.ErrNotFound)
	}

	l.InfoContext(ctx, "User row deleted")
	span.SetStatus(codes.Ok, "User deleted")
	return nil
}
