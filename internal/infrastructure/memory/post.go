package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/post"
)

type PostRepository struct {
	mu    sync.RWMutex
	posts map[string]post.Post
}

func NewPostRepository() *PostRepository {
	return &PostRepository{posts: map[string]post.Post{}}
}

func (r *PostRepository) Create(ctx context.Context, p *post.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.posts[p.ID]; ok {
		return fmt.Errorf("insert post: duplicate id %s", p.ID)
	}
	r.posts[p.ID] = clonePost(*p)
	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*post.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, apperr.NotFound("post", id)
	}
	p = clonePost(p)
	return &p, nil
}

func (r *PostRepository) List(ctx context.Context, offset, limit int) ([]post.Post, int, error) {
	r.mu.RLock()
	all := make([]post.Post, 0, len(r.posts))
	for _, p := range r.posts {
		all = append(all, clonePost(p))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset < 0 || offset >= total || limit <= 0 {
		return []post.Post{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (r *PostRepository) DeleteOwned(ctx context.Context, id, userID string) (*post.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok || p.UserID != userID {
		return nil, apperr.NotFound("post", id)
	}
	delete(r.posts, id)
	return &p, nil
}

func clonePost(p post.Post) post.Post {
	p.MediaIDs = append([]string{}, p.MediaIDs...)
	return p
}
