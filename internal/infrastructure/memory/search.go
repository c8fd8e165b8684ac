package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/search"
)

// SearchRepository keeps documents in a map and scores a query by the share
// of its terms found in the text.
type SearchRepository struct {
	mu   sync.RWMutex
	docs map[string]search.Document
}

func NewSearchRepository() *SearchRepository {
	return &SearchRepository{docs: map[string]search.Document{}}
}

func (r *SearchRepository) Upsert(ctx context.Context, d *search.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.docs[d.PostID]; ok && cur.DeletedAt != nil {
		return nil
	}
	doc := *d
	doc.DeletedAt = nil
	r.docs[d.PostID] = doc
	return nil
}

func (r *SearchRepository) Tombstone(ctx context.Context, postID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[postID]
	if !ok {
		doc = search.Document{PostID: postID, UserID: userID, CreatedAt: at}
	}
	if doc.DeletedAt == nil {
		ts := at
		doc.DeletedAt = &ts
	}
	doc.Text = ""
	r.docs[postID] = doc
	return nil
}

func (r *SearchRepository) Get(ctx context.Context, postID string) (*search.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[postID]
	if !ok {
		return nil, apperr.NotFound("search document", postID)
	}
	return &doc, nil
}

func (r *SearchRepository) Search(ctx context.Context, query string, limit int) ([]search.Hit, error) {
	terms := strings.Fields(strings.ToLower(query))
	hits := []search.Hit{}
	if len(terms) == 0 {
		return hits, nil
	}

	r.mu.RLock()
	for _, doc := range r.docs {
		if doc.DeletedAt != nil {
			continue
		}
		words := map[string]bool{}
		for _, w := range strings.Fields(strings.ToLower(doc.Text)) {
			words[w] = true
		}
		matched := 0
		for _, t := range terms {
			if words[t] {
				matched++
			}
		}
		if matched == len(terms) {
			hits = append(hits, search.Hit{Document: doc, Score: float64(matched) / float64(len(words))})
		}
	}
	r.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score == hits[j].Score {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (r *SearchRepository) PurgeTombstones(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, doc := range r.docs {
		if doc.DeletedAt != nil && doc.DeletedAt.Before(before) {
			delete(r.docs, id)
			n++
		}
	}
	return n, nil
}

// Live counts documents that are not tombstones.
func (r *SearchRepository) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, doc := range r.docs {
		if doc.DeletedAt == nil {
			n++
		}
	}
	return n
}
