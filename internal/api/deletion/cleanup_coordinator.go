package deletion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-identity-service/internal/remote"
)

// CleanupStep is one remote dependency cleanup.
type CleanupStep struct {
	Service remote.Service
	Cleaner remote.DependencyCleaner
}

// CleanupError reports which step aborted the cleanup. Earlier steps stay applied.
type CleanupError struct {
	Step remote.Service
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup %s dependencies: %v", e.Step, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// CleanupCoordinator removes a user's records from every downstream service,
// tasks first, then projects, then organizations.
type CleanupCoordinator struct {
	logger *slog.Logger
	steps  []CleanupStep
}

func NewCleanupCoordinator(task, project, org remote.DependencyCleaner, logger *slog.Logger) *CleanupCoordinator {
	return &CleanupCoordinator{
		logger: logger,
		steps: []CleanupStep{
			{Service: remote.ServiceTask, Cleaner: task},
			{Service: remote.ServiceProject, Cleaner: project},
			{Service: remote.ServiceOrganization, Cleaner: org},
		},
	}
}

// CleanupAll runs every step sequentially and stops at the first failure.
// No retries and no compensation.
func (c *CleanupCoordinator) CleanupAll(ctx context.Context, userID uuid.UUID) error {
	ctx, span := otel.Tracer("CleanupCoordinator").Start(ctx, "CleanupAll", trace.WithAttributes(
		attribute.String("user.id", userID.String()),
	))
	defer span.End()

	l := c.logger.With(slog.String("method", "CleanupAll"), slog.String("userID", userID.String()))

	for i, step := range c.steps {
		if err := step.Cleaner.DeleteDependencies(ctx, userID); err != nil {
			l.ErrorContext(ctx, "Dependency cleanup failed",
				slog.String("step", string(step.Service)),
				slog.Int("completed_steps", i),
				slog.Any("error", err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "cleanup failed at "+string(step.Service))
			return &CleanupError{Step: step.Service, Err: err}
		}
		l.DebugContext(ctx, "Dependency cleanup step done", slog.String("step", string(step.Service)))
	}

	span.SetStatus(codes.Ok, "all dependencies cleaned")
	return nil
}
