package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/search"
)

// testPool connects to POSTGRES_TEST_DSN and applies the schema. Tests that
// need it are skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../../migrations/001_init.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)
	return pool
}

func TestSearchRepositoryLateUpsertKeepsTombstone(t *testing.T) {
	ctx := context.Background()
	repo := NewSearchRepository(testPool(t))
	postID := uuid.New().String()
	word := "w" + uuid.New().String()[:8]

	require.NoError(t, repo.Tombstone(ctx, postID, "u1", time.Now().UTC()))
	require.NoError(t, repo.Upsert(ctx, &search.Document{PostID: postID, UserID: "u1", Text: "hello " + word, CreatedAt: time.Now().UTC()}))

	doc, err := repo.Get(ctx, postID)
	require.NoError(t, err)
	assert.NotNil(t, doc.DeletedAt)
	assert.Empty(t, doc.Text)

	hits, err := repo.Search(ctx, word, 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, postID, h.PostID)
	}
}

func TestSearchRepositoryUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := testPool(t)
	repo := NewSearchRepository(pool)
	postID := uuid.New().String()
	doc := &search.Document{PostID: postID, UserID: "u1", Text: "hello again", CreatedAt: time.Now().UTC()}

	require.NoError(t, repo.Upsert(ctx, doc))
	require.NoError(t, repo.Upsert(ctx, doc))

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM search_documents WHERE post_id = $1`, postID).Scan(&n))
	assert.Equal(t, 1, n)

	require.NoError(t, repo.Tombstone(ctx, postID, "u1", time.Now().UTC().Add(-time.Hour)))
	purged, err := repo.PurgeTombstones(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, purged, int64(1))

	_, err = repo.Get(ctx, postID)
	assert.Error(t, err)
}
