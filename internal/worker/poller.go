package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/outbox"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/eventbus"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/metrics"
)

// OutboxPoller republishes events whose publish failed after the producer's
// commit. Each event keeps its original ID.
type OutboxPoller struct {
	outboxRepo outbox.Repository
	bus        eventbus.Publisher
	batchSize  int
	logger     *slog.Logger
}

func NewOutboxPoller(outboxRepo outbox.Repository, bus eventbus.Publisher, batchSize int, logger *slog.Logger) *OutboxPoller {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxPoller{
		outboxRepo: outboxRepo,
		bus:        bus,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// ProcessBatch claims one batch and republishes it. Events that fail again
// go back to new for the next run.
func (p *OutboxPoller) ProcessBatch(ctx context.Context) error {
	events, err := p.outboxRepo.FetchBatch(ctx, p.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	var processedIDs []string
	var failedIDs []string

	for _, e := range events {
		msg := event.Message{
			ID:         e.ID,
			RoutingKey: e.EventType,
			Payload:    e.Payload,
			EmittedAt:  e.CreatedAt,
		}

		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = p.bus.PublishMessage(sendCtx, msg)
		cancel()

		if err != nil {
			p.logger.Error("failed to republish event", "event_id", e.ID, "routing_key", e.EventType, "error", err)
			metrics.OutboxRepublishErrors.Inc()
			failedIDs = append(failedIDs, e.ID)
			continue
		}

		metrics.OutboxRepublished.Inc()
		processedIDs = append(processedIDs, e.ID)
	}

	if len(processedIDs) > 0 {
		if err := p.outboxRepo.MarkProcessed(ctx, processedIDs); err != nil {
			return err
		}
		p.logger.Info("republished journaled events", "count", len(processedIDs))
	}

	if len(failedIDs) > 0 {
		// ctx may be done already; the rows must still leave processing
		if err := p.outboxRepo.MarkFailed(context.WithoutCancel(ctx), failedIDs); err != nil {
			p.logger.Error("failed to mark events as failed", "error", err)
		}
	}

	return nil
}
