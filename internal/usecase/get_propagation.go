package usecase

import (
	"context"
	"fmt"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/inbox"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/outbox"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/post"
)

// PropagationDTO shows how far a post's events travelled: journaled publish
// failures on the producing side and the consumers that applied them.
type PropagationDTO struct {
	PostID string          `json:"postId"`
	Post   *post.Post      `json:"post,omitempty"`
	Outbox []*outbox.Event `json:"outbox"`
	Inbox  []*inbox.Event  `json:"inbox"`
}

type GetPropagation struct {
	postRepo   PostRepository
	outboxRepo OutboxReader
	inboxRepo  InboxReader
}

func NewGetPropagation(postRepo PostRepository, outboxRepo OutboxReader, inboxRepo InboxReader) *GetPropagation {
	return &GetPropagation{
		postRepo:   postRepo,
		outboxRepo: outboxRepo,
		inboxRepo:  inboxRepo,
	}
}

// Execute reads the store directly, bypassing the cache. A deleted post still
// has a propagation trail; a post never seen anywhere is NotFound.
func (uc *GetPropagation) Execute(ctx context.Context, postID string) (*PropagationDTO, error) {
	p, err := uc.postRepo.GetByID(ctx, postID)
	if err != nil && !apperr.IsNotFound(err) {
		return nil, fmt.Errorf("get post: %w", err)
	}

	outboxEvents, err := uc.outboxRepo.ListByCorrelationID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get outbox events: %w", err)
	}

	inboxEvents, err := uc.inboxRepo.ListByCorrelationID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get inbox events: %w", err)
	}

	if p == nil && len(outboxEvents) == 0 && len(inboxEvents) == 0 {
		return nil, apperr.NotFound("post", postID)
	}
	if outboxEvents == nil {
		outboxEvents = []*outbox.Event{}
	}
	if inboxEvents == nil {
		inboxEvents = []*inbox.Event{}
	}

	return &PropagationDTO{
		PostID: postID,
		Post:   p,
		Outbox: outboxEvents,
		Inbox:  inboxEvents,
	}, nil
}
