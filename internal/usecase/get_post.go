package usecase

import (
	"context"
	"math"
	"strings"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/cache"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/post"
)

type GetPost struct {
	postRepo PostRepository
	cache    *cache.Cache
	ttl      CacheTTL
}

func NewGetPost(postRepo PostRepository, c *cache.Cache, ttl CacheTTL) *GetPost {
	return &GetPost{postRepo: postRepo, cache: c, ttl: ttl.withDefaults()}
}

// Execute reads through the post:<id> entry. Missing posts are not cached.
func (uc *GetPost) Execute(ctx context.Context, id string) (*post.Post, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("id", "is required")
	}
	return cache.GetOrCompute(ctx, uc.cache, cache.PostKey(id), uc.ttl.Entity, func(ctx context.Context) (*post.Post, error) {
		return uc.postRepo.GetByID(ctx, id)
	})
}

type ListPosts struct {
	postRepo PostRepository
	cache    *cache.Cache
	ttl      CacheTTL
}

func NewListPosts(postRepo PostRepository, c *cache.Cache, ttl CacheTTL) *ListPosts {
	return &ListPosts{postRepo: postRepo, cache: c, ttl: ttl.withDefaults()}
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Execute returns one newest-first page. Out-of-range arguments fall back to
// page 1 and the default size; sizes above the maximum are capped. A page far
// past the end is empty.
func (uc *ListPosts) Execute(ctx context.Context, page, size int) (*post.Page, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	// saturate instead of overflowing into a negative offset
	offset := math.MaxInt
	if page-1 <= (math.MaxInt-size)/size {
		offset = (page - 1) * size
	}

	return cache.GetOrCompute(ctx, uc.cache, cache.PostListKey(page, size), uc.ttl.List, func(ctx context.Context) (*post.Page, error) {
		posts, total, err := uc.postRepo.List(ctx, offset, size)
		if err != nil {
			return nil, err
		}
		return &post.Page{
			Posts:       posts,
			CurrentPage: page,
			TotalPosts:  total,
			TotalPages:  (total + size - 1) / size,
		}, nil
	})
}
