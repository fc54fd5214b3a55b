package runboard

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventResourceCreated  ActivityEventType = "resource.created"
	ActivityEventResourceUpdated  ActivityEventType = "resource.updated"
	ActivityEventResourceDeleted  ActivityEventType = "resource.deleted"
	ActivityEventResourceRestored ActivityEventType = "resource.restored"
	ActivityEventAccountConfirmed ActivityEventType = "account.confirmed"
	ActivityEventPasswordReset    ActivityEventType = "account.password.reset"
	ActivityEventTokenIssued      ActivityEventType = "account.token.issued"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	ResourceID string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
