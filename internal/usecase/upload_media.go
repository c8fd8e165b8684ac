package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
)

const MaxUploadSize = 5 << 20

type UploadMedia struct {
	blobs     media.BlobStore
	mediaRepo MediaRepository
	logger    *slog.Logger
}

func NewUploadMedia(blobs media.BlobStore, mediaRepo MediaRepository, logger *slog.Logger) *UploadMedia {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadMedia{blobs: blobs, mediaRepo: mediaRepo, logger: logger}
}

type UploadMediaParams struct {
	UserID      string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Execute uploads the blob and records it. When the record cannot be stored
// the blob is removed again so no unreferenced blob is left behind.
func (uc *UploadMedia) Execute(ctx context.Context, params UploadMediaParams) (*media.Media, error) {
	if strings.TrimSpace(params.UserID) == "" {
		return nil, apperr.Validation("userId", "is required")
	}
	if params.Body == nil || params.Size == 0 {
		return nil, apperr.Validation("file", "is required")
	}
	if params.Size > MaxUploadSize {
		return nil, apperr.Validation("file", fmt.Sprintf("exceeds %d bytes", MaxUploadSize))
	}
	if params.ContentType == "" {
		params.ContentType = "application/octet-stream"
	}

	blob, err := uc.blobs.Put(ctx, params.Filename, params.ContentType, params.Body, params.Size)
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}

	m := &media.Media{
		ID:           uuid.New().String(),
		UserID:       params.UserID,
		ExternalID:   blob.ExternalID,
		URL:          blob.URL,
		OriginalName: params.Filename,
		MimeType:     params.ContentType,
		CreatedAt:    time.Now().UTC(),
	}
	if err := uc.mediaRepo.Create(ctx, m); err != nil {
		if derr := uc.blobs.Delete(context.WithoutCancel(ctx), blob.ExternalID); derr != nil {
			uc.logger.Error("failed to remove blob of unrecorded media", "external_id", blob.ExternalID, "error", derr)
		}
		return nil, fmt.Errorf("create media: %w", err)
	}

	uc.logger.Info("media uploaded", "media_id", m.ID, "user_id", m.UserID, "external_id", m.ExternalID)
	return m, nil
}

type ListMedia struct {
	mediaRepo MediaRepository
}

func NewListMedia(mediaRepo MediaRepository) *ListMedia {
	return &ListMedia{mediaRepo: mediaRepo}
}

func (uc *ListMedia) Execute(ctx context.Context) ([]media.Media, error) {
	items, err := uc.mediaRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return items, nil
}
