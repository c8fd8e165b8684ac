package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/outbox"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/eventbus"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/metrics"
)

// eventEmitter publishes a domain event after the local commit. A failed
// publish is journaled for the worker and never reported to the caller.
type eventEmitter struct {
	bus      eventbus.Publisher
	journal  OutboxWriter
	producer string
	logger   *slog.Logger
}

func newEventEmitter(bus eventbus.Publisher, journal OutboxWriter, producer string, logger *slog.Logger) *eventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &eventEmitter{bus: bus, journal: journal, producer: producer, logger: logger}
}

func (e *eventEmitter) emit(ctx context.Context, routingKey, correlationID string, payload any) {
	msg, err := eventbus.NewMessage(routingKey, payload)
	if err != nil {
		e.logger.Error("failed to build event", "routing_key", routingKey, "post_id", correlationID, "error", err)
		return
	}

	err = e.bus.PublishMessage(ctx, msg)
	if err == nil {
		return
	}

	e.logger.Error("event not published, journaling for republish",
		"routing_key", routingKey, "event_id", msg.ID, "post_id", correlationID, "error", err)

	if e.journal == nil {
		return
	}
	jerr := e.journal.Create(ctx, &outbox.Event{
		ID:            msg.ID,
		EventType:     routingKey,
		Payload:       msg.Payload,
		Status:        outbox.StatusNew,
		CorrelationID: correlationID,
		Producer:      e.producer,
		LastError:     err.Error(),
		CreatedAt:     time.Now().UTC(),
	})
	if jerr != nil {
		e.logger.Error("failed to journal event", "routing_key", routingKey, "event_id", msg.ID, "error", jerr)
		return
	}
	metrics.OutboxJournaled.Inc()
}
