package search

import "time"

// Document is the denormalized projection of a post used for full-text lookup.
// A non-nil DeletedAt marks a tombstone: the post was deleted and a late
// content.created must not bring the document back.
type Document struct {
	PostID    string     `json:"postId"`
	UserID    string     `json:"userId"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
	DeletedAt *time.Time `json:"-"`
}

// Hit is a ranked search result.
type Hit struct {
	Document
	Score float64 `json:"score"`
}
