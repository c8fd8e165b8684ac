package post

import (
	"time"
)

type Post struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	MediaIDs  []string  `json:"mediaIds"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Page is one slice of the newest-first listing.
type Page struct {
	Posts       []Post `json:"posts"`
	CurrentPage int    `json:"currentPage"`
	TotalPosts  int    `json:"totalPosts"`
	TotalPages  int    `json:"totalPages"`
}
