package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/cache"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/eventbus"
)

type DeletePost struct {
	postRepo PostRepository
	cache    *cache.Cache
	ttl      CacheTTL
	events   *eventEmitter
	logger   *slog.Logger
}

func NewDeletePost(postRepo PostRepository, bus eventbus.Publisher, journal OutboxWriter, c *cache.Cache, ttl CacheTTL, logger *slog.Logger) *DeletePost {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeletePost{
		postRepo: postRepo,
		cache:    c,
		ttl:      ttl.withDefaults(),
		events:   newEventEmitter(bus, journal, "post-service", logger),
		logger:   logger,
	}
}

// Execute removes a post owned by userID. Posts of other users are reported
// as missing.
func (uc *DeletePost) Execute(ctx context.Context, id, userID string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation("id", "is required")
	}
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation("userId", "is required")
	}

	p, err := uc.postRepo.DeleteOwned(ctx, id, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("delete post: %w", err)
	}

	ctx = context.WithoutCancel(ctx)

	mediaIDs := p.MediaIDs
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	uc.events.emit(ctx, event.ContentDeleted, p.ID, event.Deleted{
		PostID:   p.ID,
		UserID:   p.UserID,
		MediaIDs: mediaIDs,
	})
	uc.cache.Tombstone(ctx, cache.PostKey(p.ID), uc.ttl.Entity)
	uc.cache.InvalidatePattern(ctx, cache.PostListPrefix)

	uc.logger.Info("post deleted", "post_id", p.ID, "user_id", p.UserID, "media_count", len(mediaIDs))
	return nil
}
