package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
)

type MediaRepository struct {
	mu    sync.RWMutex
	items map[string]media.Media
}

func NewMediaRepository() *MediaRepository {
	return &MediaRepository{items: map[string]media.Media{}}
}

func (r *MediaRepository) Create(ctx context.Context, m *media.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[m.ID]; ok {
		return fmt.Errorf("insert media: duplicate id %s", m.ID)
	}
	r.items[m.ID] = *m
	return nil
}

func (r *MediaRepository) GetByID(ctx context.Context, id string) (*media.Media, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[id]
	if !ok {
		return nil, apperr.NotFound("media", id)
	}
	return &m, nil
}

func (r *MediaRepository) List(ctx context.Context) ([]media.Media, error) {
	r.mu.RLock()
	items := make([]media.Media, 0, len(r.items))
	for _, m := range r.items {
		items = append(items, m)
	}
	r.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (r *MediaRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	delete(r.items, id)
	r.mu.Unlock()
	return nil
}
