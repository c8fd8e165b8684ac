package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/inbox"
)

type InboxRepository struct {
	pool *pgxpool.Pool
}

func NewInboxRepository(pool *pgxpool.Pool) *InboxRepository {
	return &InboxRepository{pool: pool}
}

// Record notes that consumer applied the event. It returns false when the
// event was already recorded, which happens on redelivery.
func (r *InboxRepository) Record(ctx context.Context, e *inbox.Event) (bool, error) {
	const query = `
		INSERT INTO inbox_events (consumer, event_id, event_type, correlation_id, processed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (consumer, event_id) DO NOTHING
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, e.Consumer, e.EventID, e.EventType, nullIfEmpty(e.CorrelationID))
	if err != nil {
		return false, fmt.Errorf("insert inbox event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *InboxRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*inbox.Event, error) {
	const query = `
		SELECT consumer, event_id, event_type, COALESCE(correlation_id, ''), processed_at
		FROM inbox_events
		WHERE correlation_id = $1
		ORDER BY processed_at ASC
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query, nullIfEmpty(correlationID))
	if err != nil {
		return nil, fmt.Errorf("query inbox events: %w", err)
	}
	defer rows.Close()

	var events []*inbox.Event
	for rows.Next() {
		e := &inbox.Event{}
		if err := rows.Scan(&e.Consumer, &e.EventID, &e.EventType, &e.CorrelationID, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan inbox event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
