// Package memory holds in-process implementations of the stores, used by
// tests and by services started without their external backends.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
)

type object struct {
	data        []byte
	contentType string
}

type BlobStore struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]object
}

func NewBlobStore(baseURL string) *BlobStore {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	return &BlobStore{baseURL: strings.TrimRight(baseURL, "/"), objects: map[string]object{}}
}

func (b *BlobStore) Put(ctx context.Context, name, contentType string, body io.Reader, size int64) (media.Blob, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return media.Blob{}, fmt.Errorf("read blob: %w", err)
	}

	key := uuid.New().String() + strings.ToLower(path.Ext(name))

	b.mu.Lock()
	b.objects[key] = object{data: data, contentType: contentType}
	b.mu.Unlock()

	return media.Blob{ExternalID: key, URL: b.baseURL + "/" + key}, nil
}

func (b *BlobStore) Delete(ctx context.Context, externalID string) error {
	b.mu.Lock()
	delete(b.objects, externalID)
	b.mu.Unlock()
	return nil
}

// Add stores data under a caller-chosen key.
func (b *BlobStore) Add(externalID string, data []byte) {
	b.mu.Lock()
	b.objects[externalID] = object{data: bytes.Clone(data)}
	b.mu.Unlock()
}

func (b *BlobStore) Exists(externalID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[externalID]
	return ok
}

func (b *BlobStore) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}

var _ media.BlobStore = (*BlobStore)(nil)
