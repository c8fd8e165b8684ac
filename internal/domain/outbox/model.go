package outbox

import (
	"context"
	"time"
)

// Status values of a journaled event.
const (
	StatusNew        = "new"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
)

// Event is a publish attempt that failed after the local commit and waits to
// be republished by the worker.
type Event struct {
	ID            string    `json:"id"`
	EventType     string    `json:"event_type"`
	Payload       []byte    `json:"payload"`
	Status        string    `json:"status"`
	CorrelationID string    `json:"correlation_id"`
	Producer      string    `json:"producer"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Repository interface {
	Create(ctx context.Context, event *Event) error
	FetchBatch(ctx context.Context, limit int) ([]*Event, error)
	MarkProcessed(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string) error
}
