package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/inbox"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/outbox"
)

type OutboxRepository struct {
	mu     sync.Mutex
	events map[string]*outbox.Event
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{events: map[string]*outbox.Event{}}
}

func (r *OutboxRepository) Create(ctx context.Context, e *outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[e.ID]; ok {
		return nil
	}
	cp := *e
	cp.UpdatedAt = time.Now().UTC()
	r.events[e.ID] = &cp
	return nil
}

func (r *OutboxRepository) FetchBatch(ctx context.Context, limit int) ([]*outbox.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var fresh []*outbox.Event
	for _, e := range r.events {
		if e.Status == outbox.StatusNew {
			fresh = append(fresh, e)
		}
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].CreatedAt.Before(fresh[j].CreatedAt) })
	if len(fresh) > limit {
		fresh = fresh[:limit]
	}
	batch := make([]*outbox.Event, 0, len(fresh))
	for _, e := range fresh {
		e.Status = outbox.StatusProcessing
		cp := *e
		batch = append(batch, &cp)
	}
	return batch, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, ids []string) error {
	r.setStatus(ids, outbox.StatusProcessed)
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []string) error {
	r.setStatus(ids, outbox.StatusNew)
	return nil
}

func (r *OutboxRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*outbox.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*outbox.Event
	for _, e := range r.events {
		if e.CorrelationID == correlationID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *OutboxRepository) setStatus(ids []string, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if e, ok := r.events[id]; ok {
			e.Status = status
			e.UpdatedAt = time.Now().UTC()
		}
	}
}

type InboxRepository struct {
	mu     sync.Mutex
	events []*inbox.Event
}

func NewInboxRepository() *InboxRepository {
	return &InboxRepository{}
}

func (r *InboxRepository) Record(ctx context.Context, e *inbox.Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cur := range r.events {
		if cur.Consumer == e.Consumer && cur.EventID == e.EventID {
			return false, nil
		}
	}
	cp := *e
	cp.ProcessedAt = time.Now().UTC()
	r.events = append(r.events, &cp)
	return true, nil
}

func (r *InboxRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]*inbox.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*inbox.Event
	for _, e := range r.events {
		if e.CorrelationID == correlationID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}
