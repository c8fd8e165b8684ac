package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/outbox"
)

type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Create(ctx context.Context, e *outbox.Event) error {
	const sql = `
		INSERT INTO outbox (id, event_type, payload, status, correlation_id, producer, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO NOTHING
	`

	_, err := conn(ctx, r.pool).Exec(ctx, sql,
		e.ID, e.EventType, e.Payload, e.Status, nullIfEmpty(e.CorrelationID), nullIfEmptyDefault(e.Producer, "unknown"), nullIfEmpty(e.LastError), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	return nil
}

// FetchBatch claims up to limit new events, oldest first. Concurrent workers
// never claim the same row.
func (r *OutboxRepository) FetchBatch(ctx context.Context, limit int) ([]*outbox.Event, error) {
	const sql = `
		WITH claimed_events AS (
			SELECT id
			FROM outbox
			WHERE status = 'new'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (SELECT id FROM claimed_events)
		RETURNING
			id,
			event_type,
			payload,
			status,
			COALESCE(correlation_id, ''),
			COALESCE(producer, 'unknown'),
			COALESCE(last_error, ''),
			created_at,
			updated_at
	`

	return r.query(ctx, sql, limit)
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE outbox
		SET status = 'processed', last_error = NULL, updated_at = NOW()
		WHERE id = ANY($1)
	`
	_, err := r.pool.Exec(ctx, sql, ids)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// MarkFailed returns the events to the queue of new ones.
func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []string) error {
	const sql = `
		UPDATE outbox
		SET status = 'new', updated_at = NOW()
		WHERE id = ANY($1)
	`
	_, err := r.pool.Exec(ctx, sql, ids)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ResetProcessing returns events stuck in processing, left by a worker that
// died mid-batch, to new.
func (r *OutboxRepository) ResetProcessing(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE outbox SET status = 'new', updated_at = NOW() WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("reset processing: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *OutboxRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*outbox.Event, error) {
	const sql = `
		SELECT
			id,
			event_type,
			payload,
			status,
			COALESCE(correlation_id, ''),
			COALESCE(producer, 'unknown'),
			COALESCE(last_error, ''),
			created_at,
			updated_at
		FROM outbox
		WHERE correlation_id = $1
		ORDER BY created_at ASC
	`

	return r.query(ctx, sql, nullIfEmpty(correlationID))
}

func (r *OutboxRepository) query(ctx context.Context, sql string, args ...any) ([]*outbox.Event, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var events []*outbox.Event
	for rows.Next() {
		e := &outbox.Event{}
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &e.Status, &e.CorrelationID, &e.Producer, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
