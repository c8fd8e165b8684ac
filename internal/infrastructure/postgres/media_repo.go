package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
)

type MediaRepository struct {
	pool *pgxpool.Pool
}

func NewMediaRepository(pool *pgxpool.Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

func (r *MediaRepository) Create(ctx context.Context, m *media.Media) error {
	const sql = `
		INSERT INTO media (id, user_id, external_id, url, original_name, mime_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, sql, m.ID, m.UserID, m.ExternalID, m.URL, m.OriginalName, m.MimeType, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

func (r *MediaRepository) GetByID(ctx context.Context, id string) (*media.Media, error) {
	const sql = `
		SELECT id, user_id, external_id, url, original_name, mime_type, created_at
		FROM media
		WHERE id = $1
	`

	var m media.Media
	err := conn(ctx, r.pool).QueryRow(ctx, sql, id).Scan(&m.ID, &m.UserID, &m.ExternalID, &m.URL, &m.OriginalName, &m.MimeType, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("media", id)
		}
		return nil, fmt.Errorf("get media by id: %w", err)
	}
	return &m, nil
}

func (r *MediaRepository) List(ctx context.Context) ([]media.Media, error) {
	const sql = `
		SELECT id, user_id, external_id, url, original_name, mime_type, created_at
		FROM media
		ORDER BY created_at DESC
	`

	rows, err := conn(ctx, r.pool).Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	items := []media.Media{}
	for rows.Next() {
		var m media.Media
		if err := rows.Scan(&m.ID, &m.UserID, &m.ExternalID, &m.URL, &m.OriginalName, &m.MimeType, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return items, nil
}

// Delete removes the record; a missing record is not an error.
func (r *MediaRepository) Delete(ctx context.Context, id string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM media WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}
