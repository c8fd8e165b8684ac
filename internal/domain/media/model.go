package media

import (
	"context"
	"io"
	"time"
)

type Media struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ExternalID   string    `json:"externalId"`
	URL          string    `json:"url"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Blob identifies an object in external storage.
type Blob struct {
	ExternalID string
	URL        string
}

// BlobStore is the external blob storage boundary. Delete of a missing blob
// succeeds.
type BlobStore interface {
	Put(ctx context.Context, name, contentType string, body io.Reader, size int64) (Blob, error)
	Delete(ctx context.Context, externalID string) error
}
