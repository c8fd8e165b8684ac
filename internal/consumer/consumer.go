// Package consumer holds the event handlers of the search and media services
// and the runner that keeps their subscriptions alive.
//
// Handlers are idempotent: applying an event twice has the effect of applying
// it once, so at-least-once delivery needs no deduplication. A handler error
// leaves the message unacknowledged; a malformed event is rejected.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/inbox"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/search"
)

type SearchIndex interface {
	Upsert(ctx context.Context, d *search.Document) error
	Tombstone(ctx context.Context, postID, userID string, at time.Time) error
}

type MediaStore interface {
	GetByID(ctx context.Context, id string) (*media.Media, error)
	Delete(ctx context.Context, id string) error
}

type InboxRecorder interface {
	Record(ctx context.Context, e *inbox.Event) (bool, error)
}

// Transactor runs fn in one store transaction carried by ctx.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// auditor writes the inbox trail once a handler has fully applied an event.
// The trail is informational: a failed write is logged and the event still
// counts as handled.
type auditor struct {
	consumer string
	inbox    InboxRecorder
	logger   *slog.Logger
}

func (a auditor) record(ctx context.Context, msg event.Message, postID string) {
	if err := a.write(ctx, msg, postID); err != nil {
		a.logger.Warn("failed to record inbox event", "event_id", msg.ID, "error", err)
	}
}

func (a auditor) write(ctx context.Context, msg event.Message, postID string) error {
	if a.inbox == nil || msg.ID == "" {
		return nil
	}
	fresh, err := a.inbox.Record(ctx, &inbox.Event{
		Consumer:      a.consumer,
		EventID:       msg.ID,
		EventType:     msg.RoutingKey,
		CorrelationID: postID,
	})
	if err != nil {
		return err
	}
	if !fresh {
		a.logger.Info("event applied again after redelivery", "event_id", msg.ID, "routing_key", msg.RoutingKey)
	}
	return nil
}
