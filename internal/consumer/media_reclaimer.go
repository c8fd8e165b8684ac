package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
)

const MediaConsumer = "media-service"

type MediaReclaimer struct {
	store  MediaStore
	blobs  media.BlobStore
	audit  auditor
	logger *slog.Logger
}

func NewMediaReclaimer(store MediaStore, blobs media.BlobStore, inbox InboxRecorder, logger *slog.Logger) *MediaReclaimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaReclaimer{
		store:  store,
		blobs:  blobs,
		audit:  auditor{consumer: MediaConsumer, inbox: inbox, logger: logger},
		logger: logger,
	}
}

// HandleDeleted reclaims every media item the deleted post referenced: the
// blob first, then the record, so a record never disappears while its blob
// remains. Items already gone are skipped. A failed item does not stop the
// others; any failure fails the whole message so it is redelivered, and the
// items reclaimed on this pass are no-ops on the next.
func (r *MediaReclaimer) HandleDeleted(ctx context.Context, msg event.Message) error {
	d, err := event.ParseDeleted(msg)
	if err != nil {
		return err
	}

	var errs []error
	reclaimed := 0
	for _, id := range d.MediaIDs {
		done, err := r.reclaim(ctx, id)
		if err != nil {
			r.logger.Error("failed to reclaim media", "post_id", d.PostID, "media_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		if done {
			reclaimed++
		}
	}
	if len(errs) > 0 {
		return apperr.Handler(msg.RoutingKey, errors.Join(errs...))
	}

	r.audit.record(ctx, msg, d.PostID)
	r.logger.Info("media reclaimed", "post_id", d.PostID, "event_id", msg.ID, "requested", len(d.MediaIDs), "reclaimed", reclaimed)
	return nil
}

// reclaim reports whether anything was left to delete.
func (r *MediaReclaimer) reclaim(ctx context.Context, id string) (bool, error) {
	m, err := r.store.GetByID(ctx, id)
	if err != nil {
		if apperr.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("load media %s: %w", id, err)
	}

	if err := r.blobs.Delete(ctx, m.ExternalID); err != nil {
		return false, fmt.Errorf("delete blob %s of media %s: %w", m.ExternalID, id, err)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("delete media %s: %w", id, err)
	}
	return true, nil
}
