package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-identity-service/app/observability/metrics"
	"github.com/FACorreiaa/go-identity-service/internal/events"
	"github.com/FACorreiaa/go-identity-service/internal/types"
)

const (
	MsgDeleted          = "User deleted successfully."
	MsgCleanupFailed    = "Failed to clean up user dependencies. Deletion aborted."
	MsgDeleteFailed     = "Failed to complete user deletion."
	MsgValidationFailed = "Unable to validate user deletion."
	MsgUnexpected       = "An unexpected error occurred while deleting the user."
)

const eventPublishTimeout = 5 * time.Second

type Validator interface {
	Validate(ctx context.Context, targetID, requesterID uuid.UUID) error
}

type DependencyCleanup interface {
	CleanupAll(ctx context.Context, userID uuid.UUID) error
}

type SessionRevoker interface {
	InvalidateSessions(ctx context.Context, userID uuid.UUID) bool
}

type UserDeleter interface {
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

var _ DeletionService = (*DeletionServiceImpl)(nil)

// DeletionService runs the user deletion saga.
type DeletionService interface {
	DeleteUserWithDependencies(ctx context.Context, targetID, requesterID uuid.UUID) types.DeletionOutcome
}

// DeletionServiceImpl drives validating, cleaning up, invalidating sessions and
// deleting, in that order. Every step short-circuits on failure and nothing
// already done is rolled back.
type DeletionServiceImpl struct {
	logger    *slog.Logger
	validator Validator
	cleanup   DependencyCleanup
	sessions  SessionRevoker
	users     UserDeleter
	publisher events.Publisher
	now       func() time.Time
}

func NewDeletionService(
	validator Validator,
	cleanup DependencyCleanup,
	sessions SessionRevoker,
	users UserDeleter,
	publisher events.Publisher,
	logger *slog.Logger,
) *DeletionServiceImpl {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &DeletionServiceImpl{
		logger:    logger,
		validator: validator,
		cleanup:   cleanup,
		sessions:  sessions,
		users:     users,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *DeletionServiceImpl) DeleteUserWithDependencies(ctx context.Context, targetID, requesterID uuid.UUID) (outcome types.DeletionOutcome) {
	ctx, span := otel.Tracer("DeletionService").Start(ctx, "DeleteUserWithDependencies", trace.WithAttributes(
		attribute.String("target.id", targetID.String()),
		attribute.String("requester.id", requesterID.String()),
	))
	defer span.End()

	l := s.logger.With(
		slog.String("method", "DeleteUserWithDependencies"),
		slog.String("targetID", targetID.String()),
		slog.String("requesterID", requesterID.String()),
	)
	start := time.Now()
	step := types.StepValidating

	defer func() {
		if r := recover(); r != nil {
			l.ErrorContext(ctx, "Panic during user deletion",
				slog.String("step", string(step)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			span.RecordError(fmt.Errorf("panic: %v", r))
			if step == types.StepDone {
				// The user record is already gone.
				outcome = types.DeletionOutcome{Kind: types.OutcomeSuccess, Step: step, Message: MsgDeleted, UserID: targetID}
			} else {
				outcome = types.DeletionOutcome{Kind: types.OutcomeError, Step: step, Message: MsgUnexpected, UserID: targetID}
			}
		}
		s.record(ctx, outcome, time.Since(start))
		span.SetAttributes(
			attribute.String("deletion.outcome", string(outcome.Kind)),
			attribute.String("deletion.step", string(outcome.Step)),
		)
		if outcome.Succeeded() {
			span.SetStatus(codes.Ok, outcome.Message)
		} else {
			span.SetStatus(codes.Error, outcome.Message)
		}
	}()

	// Validating
	if err := s.runStep(ctx, step, func(ctx context.Context) error {
		return s.validator.Validate(ctx, targetID, requesterID)
	}); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			l.InfoContext(ctx, "User deletion refused", slog.String("reason", verr.Message))
			return types.DeletionOutcome{Kind: types.OutcomeValidationFailed, Step: step, Message: verr.Message, UserID: targetID, Cause: err}
		}
		l.ErrorContext(ctx, "User deletion validation failed", slog.Any("error", err))
		return types.DeletionOutcome{Kind: types.OutcomeError, Step: step, Message: MsgValidationFailed, UserID: targetID, Cause: err}
	}

	// CleaningUp
	step = types.StepCleaningUp
	if err := s.runStep(ctx, step, func(ctx context.Context) error {
		return s.cleanup.CleanupAll(ctx, targetID)
	}); err != nil {
		l.ErrorContext(ctx, "User deletion aborted during dependency cleanup", slog.Any("error", err))
		out := types.DeletionOutcome{Kind: types.OutcomeCleanupFailed, Step: step, Message: MsgCleanupFailed, UserID: targetID, Cause: err}
		var cerr *CleanupError
		if errors.As(err, &cerr) {
			out.FailedService = string(cerr.Step)
		}
		return out
	}

	// InvalidatingSessions
	step = types.StepInvalidatingSessions
	_ = s.runStep(ctx, step, func(ctx context.Context) error {
		if !s.sessions.InvalidateSessions(ctx, targetID) {
			l.WarnContext(ctx, "Session invalidation failed, continuing with deletion")
		}
		return nil
	})

	// Deleting
	step = types.StepDeleting
	if err := s.runStep(ctx, step, func(ctx context.Context) error {
		return s.users.DeleteUser(ctx, targetID)
	}); err != nil {
		l.ErrorContext(ctx, "User dependencies removed but user record could not be deleted", slog.Any("error", err))
		return types.DeletionOutcome{Kind: types.OutcomeError, Step: step, Message: MsgDeleteFailed, UserID: targetID, Cause: err}
	}

	step = types.StepDone
	l.InfoContext(ctx, "User deleted")
	s.publishDeleted(ctx, targetID, requesterID)
	return types.DeletionOutcome{Kind: types.OutcomeSuccess, Step: step, Message: MsgDeleted, UserID: targetID}
}

func (s *DeletionServiceImpl) runStep(ctx context.Context, step types.DeletionStep, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer("DeletionService").Start(ctx, string(step))
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(step)+" failed")
		return err
	}
	span.SetStatus(codes.Ok, string(step)+" done")
	return nil
}

// publishDeleted announces the deletion. The user is already gone, so a broker
// failure or a panicking publisher is only logged.
func (s *DeletionServiceImpl) publishDeleted(ctx context.Context, targetID, requesterID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "Panic while publishing user deleted event",
				slog.String("userID", targetID.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	err := s.publisher.PublishUserDeleted(pubCtx, events.UserDeletedEvent{
		UserID:     targetID,
		DeletedBy:  requesterID,
		OccurredAt: s.now(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish user deleted event",
			slog.String("userID", targetID.String()), slog.Any("error", err))
	}
}

func (s *DeletionServiceImpl) record(ctx context.Context, outcome types.DeletionOutcome, elapsed time.Duration) {
	m := metrics.Get()
	attrs := metric.WithAttributes(
		attribute.String("outcome", string(outcome.Kind)),
		attribute.String("step", string(outcome.Step)),
	)
	m.UserDeletionsTotal.Add(ctx, 1, attrs)
	m.UserDeletionDurationSeconds.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("outcome", string(outcome.Kind))))
}
