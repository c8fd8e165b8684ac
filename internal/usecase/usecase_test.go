package usecase_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/cache"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/outbox"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/eventbus"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/memory"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/usecase"
)

type postService struct {
	posts  *memory.PostRepository
	outbox *memory.OutboxRepository
	inbox  *memory.InboxRepository
	bus    *eventbus.Memory
	redis  *miniredis.Miniredis
	cache  *cache.Cache

	create *usecase.CreatePost
	get    *usecase.GetPost
	list   *usecase.ListPosts
	del    *usecase.DeletePost
}

func newPostService(t *testing.T) *postService {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := &postService{
		posts:  memory.NewPostRepository(),
		outbox: memory.NewOutboxRepository(),
		inbox:  memory.NewInboxRepository(),
		bus:    eventbus.NewMemory(eventbus.DispatchOptions{}),
		redis:  srv,
		cache:  cache.New(client, nil),
	}
	t.Cleanup(func() { _ = s.bus.Close() })

	ttl := usecase.CacheTTL{Entity: time.Hour, List: 5 * time.Minute}
	s.create = usecase.NewCreatePost(s.posts, s.bus, s.outbox, s.cache, nil)
	s.get = usecase.NewGetPost(s.posts, s.cache, ttl)
	s.list = usecase.NewListPosts(s.posts, s.cache, ttl)
	s.del = usecase.NewDeletePost(s.posts, s.bus, s.outbox, s.cache, ttl, nil)
	return s
}

type recorder struct {
	mu   sync.Mutex
	msgs []event.Message
}

func (r *recorder) handle(_ context.Context, msg event.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) snapshot() []event.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Message(nil), r.msgs...)
}

func (s *postService) record(t *testing.T, routingKey string) *recorder {
	t.Helper()
	rec := &recorder{}
	_, err := s.bus.Subscribe(context.Background(), routingKey, rec.handle)
	require.NoError(t, err)
	return rec
}

func TestCreatePost(t *testing.T) {
	ctx := context.Background()
	s := newPostService(t)
	created := s.record(t, event.ContentCreated)

	_, err := s.list.Execute(ctx, 1, 10)
	require.NoError(t, err)
	require.True(t, s.redis.Exists("post-list:1:10"))

	p, err := s.create.Execute(ctx, usecase.CreatePostParams{UserID: "u1", Content: "  hello  ", MediaIDs: []string{"m1"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Content)

	assert.False(t, s.redis.Exists("post-list:1:10"), "listing invalidated before the call returned")

	require.Eventually(t, func() bool { return len(created.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	msg := created.snapshot()[0]
	payload, err := event.ParseCreated(msg)
	require.NoError(t, err)
	assert.Equal(t, p.ID, payload.PostID)
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, "hello", payload.Content)
	assert.True(t, p.CreatedAt.Equal(payload.CreatedAt))

	page, err := s.list.Execute(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, p.ID, page.Posts[0].ID)
}

func TestCreatePostValidation(t *testing.T) {
	ctx := context.Background()
	s := newPostService(t)
	created := s.record(t, event.ContentCreated)

	tooMany := make([]string, usecase.MaxMediaPerPost+1)
	for i := range tooMany {
		tooMany[i] = "m"
	}

	cases := map[string]usecase.CreatePostParams{
		"missing user":   {Content: "hi"},
		"blank content":  {UserID: "u1", Content: "   "},
		"long content":   {UserID: "u1", Content: strings.Repeat("x", usecase.MaxContentLength+1)},
		"too many media": {UserID: "u1", Content: "hi", MediaIDs: tooMany},
		"blank media id": {UserID: "u1", Content: "hi", MediaIDs: []string{" "}},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.create.Execute(ctx, params)
			assert.True(t, apperr.IsValidation(err), "got %v", err)
		})
	}

	_, total, err := s.posts.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Never(t, func() bool { return len(created.snapshot()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestCreatePostJournalsWhenBusIsDown(t *testing.T) {
	ctx := context.Background()
	s := newPostService(t)
	s.bus.SetUnreachable(true)

	p, err := s.create.Execute(ctx, usecase.CreatePostParams{UserID: "u1", Content: "hello"})
	require.NoError(t, err, "publish failure does not fail the write")

	stored, err := s.posts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Content)

	journaled, err := s.outbox.ListByCorrelationID(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, journaled, 1)
	assert.Equal(t, event.ContentCreated, journaled[0].EventType)
	assert.Equal(t, outbox.StatusNew, journaled[0].Status)
	assert.NotEmpty(t, journaled[0].LastError)

	var payload event.Created
	require.NoError(t, json.Unmarshal(journaled[0].Payload, &payload))
	assert.Equal(t, p.ID, payload.PostID)
}

func TestDeletePost(t *testing.T) {
	ctx := context.Background()
	s := newPostService(t)
	deleted := s.record(t, event.ContentDeleted)

	p, err := s.create.Execute(ctx, usecase.CreatePostParams{UserID: "u1", Content: "hello", MediaIDs: []string{"m1", "m2"}})
	require.NoError(t, err)

	cached, err := s.get.Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", cached.Content)
	require.True(t, s.redis.Exists(cache.PostKey(p.ID)))

	t.Run("foreign post is not found", func(t *testing.T) {
		err := s.del.Execute(ctx, p.ID, "u2")
		assert.True(t, apperr.IsNotFound(err))
		_, err = s.posts.GetByID(ctx, p.ID)
		assert.NoError(t, err)
	})

	require.NoError(t, s.del.Execute(ctx, p.ID, "u1"))

	_, err = s.get.Execute(ctx, p.ID)
	assert.True(t, apperr.IsNotFound(err), "pre-delete snapshot is never served")

	require.Eventually(t, func() bool { return len(deleted.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	payload, err := event.ParseDeleted(deleted.snapshot()[0])
	require.NoError(t, err)
	assert.Equal(t, p.ID, payload.PostID)
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, []string{"m1", "m2"}, payload.MediaIDs)

	err = s.del.Execute(ctx, p.ID, "u1")
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeletePostWithoutMediaSendsEmptyList(t *testing.T) {
	ctx := context.Background()
	s := newPostService(t)
	deleted := s.record(t, event.ContentDeleted)

	p, err := s.create.Execute(ctx, usecase.CreatePostParams{UserID: "u1", Content: "hello"})
	require.NoError(t, err)
	require.NoError(t, s.del.Execute(ctx, p.ID, "u1"))

	require.Eventually(t, func() bool { return len(deleted.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	assert.JSONEq(t,
		`{"postId":"`+p.ID+`","userId":"u1","mediaIds":[]}`,
		string(deleted.snapshot()[0].Payload))
}

func TestDegradedCache(t *testing.T) {
	ctx := context.Background()
	s := newPostService(t)
	s.redis.Close()

	p, err := s.create.Execute(ctx, usecase.CreatePostParams{UserID: "u1", Content: "hello"})
	require.NoError(t, err)

	got, err := s.get.Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	page, err := s.list.Execute(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalPosts)

	require.NoError(t, s.del.Execute(ctx, p.ID, "u1"))
	_, err = s.get.Execute(ctx, p.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestListPostsPaging(t *testing.T) {
	ctx := context.Background()
	s := newPostService(t)

	for i := 0; i < 25; i++ {
		_, err := s.create.Execute(ctx, usecase.CreatePostParams{UserID: "u1", Content: "post"})
		require.NoError(t, err)
	}

	page, err := s.list.Execute(ctx, 3, 10)
	require.NoError(t, err)
	assert.Len(t, page.Posts, 5)
	assert.Equal(t, 3, page.CurrentPage)
	assert.Equal(t, 25, page.TotalPosts)
	assert.Equal(t, 3, page.TotalPages)

	page, err = s.list.Execute(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Len(t, page.Posts, usecase.DefaultPageSize)
	assert.True(t, s.redis.Exists(cache.PostListKey(1, usecase.DefaultPageSize)))

	page, err = s.list.Execute(ctx, 9, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)

	page, err = s.list.Execute(ctx, 1<<62, 4)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Equal(t, 1<<62, page.CurrentPage)
	assert.Equal(t, 25, page.TotalPosts)

	page, err = s.list.Execute(ctx, math.MaxInt, usecase.MaxPageSize)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)

	posts, total, err := s.posts.List(ctx, -4, 4)
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, 25, total)
}

func TestGetPropagation(t *testing.T) {
	ctx := context.Background()
	s := newPostService(t)
	uc := usecase.NewGetPropagation(s.posts, s.outbox, s.inbox)

	_, err := uc.Execute(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))

	p, err := s.create.Execute(ctx, usecase.CreatePostParams{UserID: "u1", Content: "hello"})
	require.NoError(t, err)

	view, err := uc.Execute(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Post)
	assert.Empty(t, view.Outbox)
	assert.Empty(t, view.Inbox)

	s.bus.SetUnreachable(true)
	require.NoError(t, s.del.Execute(ctx, p.ID, "u1"))

	view, err = uc.Execute(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Post)
	require.Len(t, view.Outbox, 1)
	assert.Equal(t, event.ContentDeleted, view.Outbox[0].EventType)
}

func TestSearchPostsRequiresQuery(t *testing.T) {
	uc := usecase.NewSearchPosts(memory.NewSearchRepository())
	_, err := uc.Execute(context.Background(), "  ")
	assert.True(t, apperr.IsValidation(err))

	hits, err := uc.Execute(context.Background(), "hello")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

type failingMediaRepo struct {
	*memory.MediaRepository
}

func (failingMediaRepo) Create(context.Context, *media.Media) error {
	return errors.New("store down")
}

func TestUploadMedia(t *testing.T) {
	ctx := context.Background()
	blobs := memory.NewBlobStore("")
	repo := memory.NewMediaRepository()
	uc := usecase.NewUploadMedia(blobs, repo, nil)

	body := []byte("png bytes")
	m, err := uc.Execute(ctx, usecase.UploadMediaParams{
		UserID: "u1", Filename: "cat.png", ContentType: "image/png", Size: int64(len(body)), Body: bytes.NewReader(body),
	})
	require.NoError(t, err)
	assert.True(t, blobs.Exists(m.ExternalID))
	assert.Equal(t, "cat.png", m.OriginalName)

	items, err := usecase.NewListMedia(repo).Execute(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, m.ID, items[0].ID)

	t.Run("too large", func(t *testing.T) {
		_, err := uc.Execute(ctx, usecase.UploadMediaParams{
			UserID: "u1", Filename: "big.bin", Size: usecase.MaxUploadSize + 1, Body: bytes.NewReader(nil),
		})
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := uc.Execute(ctx, usecase.UploadMediaParams{UserID: "u1"})
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("record failure removes the blob", func(t *testing.T) {
		blobs := memory.NewBlobStore("")
		uc := usecase.NewUploadMedia(blobs, failingMediaRepo{memory.NewMediaRepository()}, nil)
		_, err := uc.Execute(ctx, usecase.UploadMediaParams{
			UserID: "u1", Filename: "cat.png", Size: int64(len(body)), Body: bytes.NewReader(body),
		})
		require.Error(t, err)
		assert.Zero(t, blobs.Len())
	})
}
