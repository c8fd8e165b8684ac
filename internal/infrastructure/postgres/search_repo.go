package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/search"
)

type SearchRepository struct {
	pool *pgxpool.Pool
}

func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

// Upsert writes the document unless a tombstone for the post exists.
// Applying the same document twice leaves one row.
func (r *SearchRepository) Upsert(ctx context.Context, d *search.Document) error {
	const sql = `
		INSERT INTO search_documents (post_id, user_id, text, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (post_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
			text = EXCLUDED.text,
			created_at = EXCLUDED.created_at
		WHERE search_documents.deleted_at IS NULL
	`

	_, err := conn(ctx, r.pool).Exec(ctx, sql, d.PostID, d.UserID, d.Text, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert search document: %w", err)
	}
	return nil
}

// Tombstone hides the post from search and blocks later upserts. It creates
// the tombstone when the document was never indexed.
func (r *SearchRepository) Tombstone(ctx context.Context, postID, userID string, at time.Time) error {
	const sql = `
		INSERT INTO search_documents (post_id, user_id, text, created_at, deleted_at)
		VALUES ($1, $2, '', $3, $3)
		ON CONFLICT (post_id) DO UPDATE
		SET text = '',
			deleted_at = COALESCE(search_documents.deleted_at, EXCLUDED.deleted_at)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, sql, postID, userID, at)
	if err != nil {
		return fmt.Errorf("tombstone search document: %w", err)
	}
	return nil
}

func (r *SearchRepository) Get(ctx context.Context, postID string) (*search.Document, error) {
	const sql = `
		SELECT post_id, user_id, text, created_at, deleted_at
		FROM search_documents
		WHERE post_id = $1
	`

	var d search.Document
	err := conn(ctx, r.pool).QueryRow(ctx, sql, postID).Scan(&d.PostID, &d.UserID, &d.Text, &d.CreatedAt, &d.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("search document", postID)
		}
		return nil, fmt.Errorf("get search document: %w", err)
	}
	return &d, nil
}

// Search ranks live documents against a plain-text query.
func (r *SearchRepository) Search(ctx context.Context, query string, limit int) ([]search.Hit, error) {
	const sql = `
		SELECT post_id, user_id, text, created_at,
			ts_rank(to_tsvector('english', text), plainto_tsquery('english', $1)) AS score
		FROM search_documents
		WHERE deleted_at IS NULL
			AND to_tsvector('english', text) @@ plainto_tsquery('english', $1)
		ORDER BY score DESC, created_at DESC
		LIMIT $2
	`

	rows, err := conn(ctx, r.pool).Query(ctx, sql, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query search documents: %w", err)
	}
	defer rows.Close()

	hits := []search.Hit{}
	for rows.Next() {
		var h search.Hit
		var score float32
		if err := rows.Scan(&h.PostID, &h.UserID, &h.Text, &h.CreatedAt, &score); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		h.Score = float64(score)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return hits, nil
}

// PurgeTombstones removes tombstones older than before.
func (r *SearchRepository) PurgeTombstones(ctx context.Context, before time.Time) (int64, error) {
	const sql = `
		DELETE FROM search_documents
		WHERE deleted_at IS NOT NULL AND deleted_at < $1
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, sql, before)
	if err != nil {
		return 0, fmt.Errorf("purge tombstones: %w", err)
	}
	return tag.RowsAffected(), nil
}
