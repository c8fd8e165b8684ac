package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/search"
)

const SearchConsumer = "search-service"

type SearchIndexer struct {
	index  SearchIndex
	audit  auditor
	tx     Transactor
	logger *slog.Logger
}

func NewSearchIndexer(index SearchIndex, inbox InboxRecorder, logger *slog.Logger) *SearchIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchIndexer{
		index:  index,
		audit:  auditor{consumer: SearchConsumer, inbox: inbox, logger: logger},
		logger: logger,
	}
}

// WithTransactor makes each document write commit together with its inbox
// row. A failed inbox write then fails the handler.
func (s *SearchIndexer) WithTransactor(tx Transactor) *SearchIndexer {
	s.tx = tx
	return s
}

// HandleCreated upserts the post's document. A post already deleted stays
// deleted.
func (s *SearchIndexer) HandleCreated(ctx context.Context, msg event.Message) error {
	c, err := event.ParseCreated(msg)
	if err != nil {
		return err
	}

	doc := &search.Document{
		PostID:    c.PostID,
		UserID:    c.UserID,
		Text:      c.Content,
		CreatedAt: c.CreatedAt,
	}
	err = s.apply(ctx, msg, c.PostID, func(ctx context.Context) error {
		return s.index.Upsert(ctx, doc)
	})
	if err != nil {
		return apperr.Handler(msg.RoutingKey, err)
	}

	s.logger.Info("search document indexed", "post_id", c.PostID, "event_id", msg.ID)
	return nil
}

// HandleDeleted hides the post from search, whether or not it was indexed.
func (s *SearchIndexer) HandleDeleted(ctx context.Context, msg event.Message) error {
	d, err := event.ParseDeleted(msg)
	if err != nil {
		return err
	}

	at := msg.EmittedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	err = s.apply(ctx, msg, d.PostID, func(ctx context.Context) error {
		return s.index.Tombstone(ctx, d.PostID, d.UserID, at)
	})
	if err != nil {
		return apperr.Handler(msg.RoutingKey, err)
	}

	s.logger.Info("search document removed", "post_id", d.PostID, "event_id", msg.ID)
	return nil
}

func (s *SearchIndexer) apply(ctx context.Context, msg event.Message, postID string, write func(ctx context.Context) error) error {
	if s.tx == nil {
		if err := write(ctx); err != nil {
			return err
		}
		s.audit.record(ctx, msg, postID)
		return nil
	}
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := write(ctx); err != nil {
			return err
		}
		return s.audit.write(ctx, msg, postID)
	})
}
