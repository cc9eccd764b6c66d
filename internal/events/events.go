// Package events publishes identity domain events for other services.
// Publishing is best effort: callers log failures and carry on.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const RoutingKeyUserDeleted = "user.deleted"

// UserDeletedEvent is emitted after a user record has been physically removed.
type UserDeletedEvent struct {
	UserID     uuid.UUID `json:"userId"`
	DeletedBy  uuid.UUID `json:"deletedBy"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	PublishUserDeleted(ctx context.Context, event UserDeletedEvent) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

func (NoopPublisher) PublishUserDeleted(context.Context, UserDeletedEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }
