package types

import "github.com/google/uuid"

// OutcomeKind tags the result of a user deletion saga.
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeValidationFailed OutcomeKind = "validation_failed"
	OutcomeCleanupFailed    OutcomeKind = "cleanup_failed"
	OutcomeError            OutcomeKind = "error"
)

// DeletionStep names a saga state.
type DeletionStep string

const (
	StepValidating           DeletionStep = "validating"
	StepCleaningUp           DeletionStep = "cleaning_up"
	StepInvalidatingSessions DeletionStep = "invalidating_sessions"
	StepDeleting             DeletionStep = "deleting"
	StepDone                 DeletionStep = "done"
)

// DeletionOutcome is produced for every deletion request and never persisted.
// Message is safe to show to the caller. FailedService is set only for cleanup failures.
// Cause is kept for status mapping and is never serialized.
type DeletionOutcome struct {
	Kind          OutcomeKind  `json:"kind"`
	Step          DeletionStep `json:"step"`
	Message       string       `json:"message"`
	FailedService string       `json:"failed_service,omitempty"`
	UserID        uuid.UUID    `json:"user_id"`
	Cause         error        `json:"-"`
}

// Succeeded reports whether the saga completed.
func (o DeletionOutcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// DeletedUserData is the data payload of a successful deletion response.
type DeletedUserData struct {
	UserID uuid.UUID `json:"userId"`
}
