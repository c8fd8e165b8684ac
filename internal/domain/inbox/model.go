package inbox

import "time"

// Event records that a consumer fully applied a delivered event. It is an
// audit trail; consumers stay idempotent without consulting it.
type Event struct {
	Consumer      string    `json:"consumer"`
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	CorrelationID string    `json:"correlation_id"`
	ProcessedAt   time.Time `json:"processed_at"`
}
