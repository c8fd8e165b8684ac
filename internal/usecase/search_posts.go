package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/search"
)

const SearchLimit = 10

type SearchPosts struct {
	searchRepo SearchReader
}

func NewSearchPosts(searchRepo SearchReader) *SearchPosts {
	return &SearchPosts{searchRepo: searchRepo}
}

func (uc *SearchPosts) Execute(ctx context.Context, query string) ([]search.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("query", "is required")
	}
	hits, err := uc.searchRepo.Search(ctx, query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	return hits, nil
}
