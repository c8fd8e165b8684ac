package usecase

import (
	"context"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/inbox"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/outbox"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/post"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/search"
)

type PostRepository interface {
	Create(ctx context.Context, p *post.Post) error
	GetByID(ctx context.Context, id string) (*post.Post, error)
	List(ctx context.Context, offset, limit int) ([]post.Post, int, error)
	DeleteOwned(ctx context.Context, id, userID string) (*post.Post, error)
}

type OutboxWriter interface {
	Create(ctx context.Context, e *outbox.Event) error
}

type OutboxReader interface {
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*outbox.Event, error)
}

type InboxReader interface {
	ListByCorrelationID(ctx context.Context, correlationID string) ([]*inbox.Event, error)
}

type SearchReader interface {
	Search(ctx context.Context, query string, limit int) ([]search.Hit, error)
}

type MediaRepository interface {
	Create(ctx context.Context, m *media.Media) error
	List(ctx context.Context) ([]media.Media, error)
}

// CacheTTL holds the lifetimes of the two kinds of post cache entries.
type CacheTTL struct {
	Entity time.Duration
	List   time.Duration
}

func (t CacheTTL) withDefaults() CacheTTL {
	if t.Entity <= 0 {
		t.Entity = time.Hour
	}
	if t.List <= 0 {
		t.List = 5 * time.Minute
	}
	return t
}
