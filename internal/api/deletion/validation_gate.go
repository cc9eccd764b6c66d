package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-identity-service/internal/remote"
	"github.com/FACorreiaa/go-identity-service/internal/types"
)

const (
	MsgSelfDeletion       = "Users cannot delete their own account."
	MsgUserNotFound       = "User not found."
	MsgLastSystemAdmin    = "Cannot delete the last active system administrator."
	MsgSoleOrgAdmin       = "User is the sole administrator of one or more organizations."
	MsgSoleProjectAdmin   = "User is the sole administrator of one or more projects."
	msgUnverifiedAdminFmt = "Unable to verify administrator roles with the %s service."
)

// ValidationError is a user-correctable reason a deletion was refused.
// Message is shown to the caller verbatim.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AdminCheckPolicy decides what a failed remote admin-role check means.
type AdminCheckPolicy string

const (
	// FailOpen treats an unreachable service as "no blocking role".
	FailOpen AdminCheckPolicy = "fail-open"
	// FailClosed refuses the deletion when a service cannot answer.
	FailClosed AdminCheckPolicy = "fail-closed"
)

// ParseAdminCheckPolicy maps a config value to a policy. Empty means FailOpen.
func ParseAdminCheckPolicy(s string) (AdminCheckPolicy, error) {
	switch AdminCheckPolicy(s) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", fmt.Errorf("unknown admin check policy %q", s)
}

// UserLookup is the part of the user store the deletion saga reads.
type UserLookup interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*types.User, error)
	CountActiveSystemAdmins(ctx context.Context) (int, error)
}

// LastAdminGuard keeps at least one active SystemAdmin in the system.
type LastAdminGuard struct {
	users UserLookup
}

func NewLastAdminGuard(users UserLookup) *LastAdminGuard {
	return &LastAdminGuard{users: users}
}

// Check refuses to remove target when it is the only active SystemAdmin left.
func (g *LastAdminGuard) Check(ctx context.Context, target *types.User) error {
	if !target.IsSystemAdmin() || !target.IsActive {
		return nil
	}
	n, err := g.users.CountActiveSystemAdmins(ctx)
	if err != nil {
		return fmt.Errorf("last admin guard: %w", err)
	}
	if n <= 1 {
		return &ValidationError{Message: MsgLastSystemAdmin}
	}
	return nil
}

// ValidationGate decides whether a user may be deleted.
type ValidationGate struct {
	logger  *slog.Logger
	users   UserLookup
	guard   *LastAdminGuard
	org     remote.AdminRoleChecker
	project remote.AdminRoleChecker
	policy  AdminCheckPolicy
}

func NewValidationGate(users UserLookup, org, project remote.AdminRoleChecker, policy AdminCheckPolicy, logger *slog.Logger) *ValidationGate {
	return &ValidationGate{
		logger:  logger,
		users:   users,
		guard:   NewLastAdminGuard(users),
		org:     org,
		project: project,
		policy:  policy,
	}
}

// Validate returns nil when targetID may be deleted by requesterID.
// Refusals are *ValidationError; anything else is an infrastructure failure.
func (g *ValidationGate) Validate(ctx context.Context, targetID, requesterID uuid.UUID) error {
	ctx, span := otel.Tracer("ValidationGate").Start(ctx, "Validate", trace.WithAttributes(
		attribute.String("target.id", targetID.String()),
		attribute.String("requester.id", requesterID.String()),
	))
	defer span.End()

	l := g.logger.With(slog.String("method", "Validate"), slog.String("targetID", targetID.String()))

	if targetID == requesterID {
		span.SetStatus(codes.Error, "self deletion")
		return &ValidationError{Message: MsgSelfDeletion}
	}

	target, err := g.users.GetUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			span.SetStatus(codes.Error, "target not found")
			return &ValidationError{Message: MsgUserNotFound, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "target lookup failed")
		return fmt.Errorf("validate deletion: %w", err)
	}

	if err := g.guard.Check(ctx, target); err != nil {
		span.SetStatus(codes.Error, "last admin")
		return err
	}

	requesterIsSystemAdmin, err := g.isSystemAdmin(ctx, requesterID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "requester lookup failed")
		return fmt.Errorf("validate deletion: %w", err)
	}
	if requesterIsSystemAdmin {
		l.DebugContext(ctx, "Requester is SystemAdmin, skipping remote admin checks")
		span.SetStatus(codes.Ok, "eligible")
		return nil
	}

	if err := g.checkRemoteAdminRoles(ctx, targetID); err != nil {
		span.SetStatus(codes.Error, "remote admin check refused")
		return err
	}

	span.SetStatus(codes.Ok, "eligible")
	return nil
}

// isSystemAdmin reads the requester's role from the store. A requester that no
// longer exists is treated as an ordinary user.
func (g *ValidationGate) isSystemAdmin(ctx context.Context, requesterID uuid.UUID) (bool, error) {
	requester, err := g.users.GetUserByID(ctx, requesterID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return requester.IsSystemAdmin() && requester.IsActive, nil
}

type remoteAnswer struct {
	check remote.AdminRoleCheck
	err   error
}

// checkRemoteAdminRoles asks the organization service, then the project service.
// A refusal from the organization service ends the check without calling the
// project service.
func (g *ValidationGate) checkRemoteAdminRoles(ctx context.Context, targetID uuid.UUID) error {
	var org remoteAnswer
	org.check, org.err = g.org.CheckAdminRoles(ctx, targetID)
	if err := g.evaluate(ctx, remote.ServiceOrganization, org, MsgSoleOrgAdmin); err != nil {
		return err
	}

	var project remoteAnswer
	project.check, project.err = g.project.CheckAdminRoles(ctx, targetID)
	return g.evaluate(ctx, remote.ServiceProject, project, MsgSoleProjectAdmin)
}

func (g *ValidationGate) evaluate(ctx context.Context, service remote.Service, a remoteAnswer, blockingMsg string) error {
	if a.err != nil {
		if g.policy == FailClosed {
			g.logger.ErrorContext(ctx, "Admin role check failed, refusing deletion",
				slog.String("service", string(service)), slog.Any("error", a.err))
			return &ValidationError{Message: fmt.Sprintf(msgUnverifiedAdminFmt, service), Err: a.err}
		}
		g.logger.WarnContext(ctx, "Admin role check failed, assuming no blocking role",
			slog.String("service", string(service)), slog.Any("error", a.err))
		return nil
	}
	if a.check.Blocking {
		g.logger.InfoContext(ctx, "Deletion blocked by sole administrator role",
			slog.String("service", string(service)), slog.String("remote_message", a.check.Message))
		return &ValidationError{Message: blockingMsg}
	}
	return nil
}
