package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/cache"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/post"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/eventbus"
)

const (
	MaxContentLength = 5000
	MaxMediaPerPost  = 10
)

type CreatePost struct {
	postRepo PostRepository
	cache    *cache.Cache
	events   *eventEmitter
	logger   *slog.Logger
}

func NewCreatePost(postRepo PostRepository, bus eventbus.Publisher, journal OutboxWriter, c *cache.Cache, logger *slog.Logger) *CreatePost {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreatePost{
		postRepo: postRepo,
		cache:    c,
		events:   newEventEmitter(bus, journal, "post-service", logger),
		logger:   logger,
	}
}

type CreatePostParams struct {
	UserID   string   `json:"userId"`
	Content  string   `json:"content"`
	MediaIDs []string `json:"mediaIds"`
}

func (p CreatePostParams) validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return apperr.Validation("userId", "is required")
	}
	n := utf8.RuneCountInString(strings.TrimSpace(p.Content))
	if n == 0 {
		return apperr.Validation("content", "is required")
	}
	if n > MaxContentLength {
		return apperr.Validation("content", fmt.Sprintf("exceeds %d characters", MaxContentLength))
	}
	if len(p.MediaIDs) > MaxMediaPerPost {
		return apperr.Validation("mediaIds", fmt.Sprintf("allows at most %d items", MaxMediaPerPost))
	}
	for _, id := range p.MediaIDs {
		if strings.TrimSpace(id) == "" {
			return apperr.Validation("mediaIds", "contains an empty id")
		}
	}
	return nil
}

// Execute stores the post, then announces it and drops cached listings. The
// post is returned once stored, whatever happens to the two side effects.
func (uc *CreatePost) Execute(ctx context.Context, params CreatePostParams) (*post.Post, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	mediaIDs := append([]string{}, params.MediaIDs...)
	p := &post.Post{
		ID:        uuid.New().String(),
		UserID:    params.UserID,
		Content:   strings.TrimSpace(params.Content),
		MediaIDs:  mediaIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.postRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	// side effects outlive a client that hung up after the commit
	ctx = context.WithoutCancel(ctx)

	uc.events.emit(ctx, event.ContentCreated, p.ID, event.Created{
		PostID:    p.ID,
		UserID:    p.UserID,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
	})
	uc.cache.InvalidatePattern(ctx, cache.PostListPrefix)

	uc.logger.Info("post created", "post_id", p.ID, "user_id", p.UserID)
	return p, nil
}
