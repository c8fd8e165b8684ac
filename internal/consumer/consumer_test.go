package consumer_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/consumer"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/inbox"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/media"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/search"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/eventbus"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/infrastructure/memory"
)

func message(t *testing.T, routingKey string, payload any) event.Message {
	t.Helper()
	msg, err := eventbus.NewMessage(routingKey, payload)
	require.NoError(t, err)
	return msg
}

func created(t *testing.T, postID, userID, content string) event.Message {
	return message(t, event.ContentCreated, event.Created{
		PostID: postID, UserID: userID, Content: content, CreatedAt: time.Now().UTC(),
	})
}

func deleted(t *testing.T, postID, userID string, mediaIDs ...string) event.Message {
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	return message(t, event.ContentDeleted, event.Deleted{PostID: postID, UserID: userID, MediaIDs: mediaIDs})
}

func seedMedia(t *testing.T, repo *memory.MediaRepository, blobs *memory.BlobStore, id string) {
	t.Helper()
	external := "blob-" + id
	blobs.Add(external, []byte("bytes"))
	require.NoError(t, repo.Create(context.Background(), &media.Media{
		ID: id, UserID: "u1", ExternalID: external, URL: "memory://blobs/" + external, CreatedAt: time.Now().UTC(),
	}))
}

func TestSearchIndexerRedeliveredCreateKeepsOneDocument(t *testing.T) {
	ctx := context.Background()
	index := memory.NewSearchRepository()
	inboxRepo := memory.NewInboxRepository()
	indexer := consumer.NewSearchIndexer(index, inboxRepo, nil)

	msg := created(t, "p1", "u1", "hello")
	require.NoError(t, indexer.HandleCreated(ctx, msg))
	require.NoError(t, indexer.HandleCreated(ctx, msg))

	assert.Equal(t, 1, index.Live())
	hits, err := index.Search(ctx, "hello", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].PostID)

	trail, err := inboxRepo.ListByCorrelationID(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, trail, 1)
}

func TestSearchIndexerLateCreateDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	index := memory.NewSearchRepository()
	indexer := consumer.NewSearchIndexer(index, nil, nil)

	require.NoError(t, indexer.HandleDeleted(ctx, deleted(t, "p1", "u1")))
	require.NoError(t, indexer.HandleCreated(ctx, created(t, "p1", "u1", "hello")))

	assert.Zero(t, index.Live())
	hits, err := index.Search(ctx, "hello", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchIndexerRejectsMalformed(t *testing.T) {
	indexer := consumer.NewSearchIndexer(memory.NewSearchRepository(), nil, nil)

	err := indexer.HandleCreated(context.Background(), event.Message{
		ID: "e1", RoutingKey: event.ContentCreated, Payload: json.RawMessage(`{"userId":"u1"}`),
	})
	assert.True(t, apperr.IsValidation(err))

	err = indexer.HandleDeleted(context.Background(), event.Message{
		ID: "e2", RoutingKey: event.ContentDeleted, Payload: json.RawMessage(`not json`),
	})
	assert.True(t, apperr.IsValidation(err))
}

type failingIndex struct {
	*memory.SearchRepository
}

func (failingIndex) Upsert(context.Context, *search.Document) error {
	return errors.New("index down")
}

func TestSearchIndexerStoreFailureIsHandlerError(t *testing.T) {
	indexer := consumer.NewSearchIndexer(failingIndex{memory.NewSearchRepository()}, nil, nil)
	err := indexer.HandleCreated(context.Background(), created(t, "p1", "u1", "hello"))
	assert.True(t, apperr.IsHandler(err))
	assert.False(t, apperr.IsValidation(err))
}

type failingInbox struct{}

func (failingInbox) Record(context.Context, *inbox.Event) (bool, error) {
	return false, errors.New("inbox down")
}

type recordingTx struct {
	calls      int
	rolledBack int
}

func (r *recordingTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	err := fn(ctx)
	if err != nil {
		r.rolledBack++
	}
	return err
}

func TestSearchIndexerInboxFailureWithoutTransactionIsIgnored(t *testing.T) {
	index := memory.NewSearchRepository()
	indexer := consumer.NewSearchIndexer(index, failingInbox{}, nil)

	require.NoError(t, indexer.HandleCreated(context.Background(), created(t, "p1", "u1", "hello")))
	assert.Equal(t, 1, index.Live())
}

func TestSearchIndexerTransactionRollsBackOnInboxFailure(t *testing.T) {
	tx := &recordingTx{}
	indexer := consumer.NewSearchIndexer(memory.NewSearchRepository(), failingInbox{}, nil).WithTransactor(tx)

	err := indexer.HandleDeleted(context.Background(), deleted(t, "p1", "u1"))
	assert.True(t, apperr.IsHandler(err))
	assert.Equal(t, 1, tx.calls)
	assert.Equal(t, 1, tx.rolledBack)

	ok := &recordingTx{}
	indexer = consumer.NewSearchIndexer(memory.NewSearchRepository(), memory.NewInboxRepository(), nil).WithTransactor(ok)
	require.NoError(t, indexer.HandleCreated(context.Background(), created(t, "p2", "u1", "hi")))
	assert.Equal(t, 1, ok.calls)
	assert.Zero(t, ok.rolledBack)
}

func TestMediaReclaimerDeleteTwiceEqualsOnce(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	blobs := memory.NewBlobStore("")
	seedMedia(t, repo, blobs, "m1")
	seedMedia(t, repo, blobs, "m2")
	seedMedia(t, repo, blobs, "keep")

	reclaimer := consumer.NewMediaReclaimer(repo, blobs, nil, nil)
	msg := deleted(t, "p1", "u1", "m1", "m2", "never-existed")

	require.NoError(t, reclaimer.HandleDeleted(ctx, msg))
	require.NoError(t, reclaimer.HandleDeleted(ctx, msg))

	for _, id := range []string{"m1", "m2"} {
		_, err := repo.GetByID(ctx, id)
		assert.True(t, apperr.IsNotFound(err))
		assert.False(t, blobs.Exists("blob-"+id))
	}
	_, err := repo.GetByID(ctx, "keep")
	assert.NoError(t, err)
	assert.True(t, blobs.Exists("blob-keep"))
}

// flakyBlobs fails deletes of one blob until healed.
type flakyBlobs struct {
	*memory.BlobStore
	broken  string
	healed  atomic.Bool
	attempt atomic.Int32
}

func (f *flakyBlobs) Delete(ctx context.Context, externalID string) error {
	if externalID == f.broken && !f.healed.Load() {
		f.attempt.Add(1)
		return errors.New("blob store timeout")
	}
	return f.BlobStore.Delete(ctx, externalID)
}

func TestMediaReclaimerPartialFailureResumesOnRedelivery(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	blobs := &flakyBlobs{BlobStore: memory.NewBlobStore(""), broken: "blob-m2"}
	seedMedia(t, repo, blobs.BlobStore, "m1")
	seedMedia(t, repo, blobs.BlobStore, "m2")
	seedMedia(t, repo, blobs.BlobStore, "m3")

	reclaimer := consumer.NewMediaReclaimer(repo, blobs, nil, nil)
	msg := deleted(t, "p1", "u1", "m1", "m2", "m3")

	err := reclaimer.HandleDeleted(ctx, msg)
	require.Error(t, err)
	assert.True(t, apperr.IsHandler(err))

	_, err = repo.GetByID(ctx, "m1")
	assert.True(t, apperr.IsNotFound(err), "items before the failure are reclaimed")
	_, err = repo.GetByID(ctx, "m3")
	assert.True(t, apperr.IsNotFound(err), "items after the failure are reclaimed")
	_, err = repo.GetByID(ctx, "m2")
	assert.NoError(t, err, "record kept while its blob remains")
	assert.True(t, blobs.Exists("blob-m2"))

	blobs.healed.Store(true)
	require.NoError(t, reclaimer.HandleDeleted(ctx, msg))
	_, err = repo.GetByID(ctx, "m2")
	assert.True(t, apperr.IsNotFound(err))
	assert.Zero(t, blobs.Len())
}

func TestScenarioCreateThenDeleteConverges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.NewMemory(eventbus.DispatchOptions{})
	defer bus.Close()

	index := memory.NewSearchRepository()
	mediaRepo := memory.NewMediaRepository()
	blobs := memory.NewBlobStore("")
	inboxRepo := memory.NewInboxRepository()
	seedMedia(t, mediaRepo, blobs, "m1")

	indexer := consumer.NewSearchIndexer(index, inboxRepo, nil)
	reclaimer := consumer.NewMediaReclaimer(mediaRepo, blobs, inboxRepo, nil)

	searchRunner := consumer.NewRunner(bus, nil)
	searchRunner.Handle(event.ContentCreated, indexer.HandleCreated)
	searchRunner.Handle(event.ContentDeleted, indexer.HandleDeleted)
	mediaRunner := consumer.NewRunner(bus, nil)
	mediaRunner.Handle(event.ContentDeleted, reclaimer.HandleDeleted)

	var wg sync.WaitGroup
	for _, r := range []*consumer.Runner{searchRunner, mediaRunner} {
		wg.Add(1)
		go func(r *consumer.Runner) {
			defer wg.Done()
			_ = r.Run(ctx)
		}(r)
	}
	waitSubscribed(t, bus)

	require.NoError(t, bus.Publish(ctx, event.ContentCreated, event.Created{
		PostID: "p1", UserID: "u1", Content: "hello", CreatedAt: time.Now().UTC(),
	}))
	require.Eventually(t, func() bool {
		doc, err := index.Get(ctx, "p1")
		return err == nil && doc.DeletedAt == nil
	}, time.Second, 10*time.Millisecond)

	doc, err := index.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.UserID)
	assert.Equal(t, "hello", doc.Text)
	assert.Equal(t, 1, index.Live())

	require.NoError(t, bus.Publish(ctx, event.ContentDeleted, event.Deleted{
		PostID: "p1", UserID: "u1", MediaIDs: []string{"m1"},
	}))
	require.Eventually(t, func() bool {
		_, mediaErr := mediaRepo.GetByID(ctx, "m1")
		return index.Live() == 0 && apperr.IsNotFound(mediaErr) && !blobs.Exists("blob-m1")
	}, time.Second, 10*time.Millisecond)

	trail, err := inboxRepo.ListByCorrelationID(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, trail, 3)

	cancel()
	wg.Wait()
}

// waitSubscribed blocks until both runners have bound their three queues.
func waitSubscribed(t *testing.T, bus *eventbus.Memory) {
	t.Helper()
	require.Eventually(t, func() bool { return bus.Subscriptions() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestRunnerResubscribesAfterConnectionLoss(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.NewMemory(eventbus.DispatchOptions{})
	defer bus.Close()

	var handled atomic.Int32
	runner := consumer.NewRunner(bus, nil, consumer.WithBackoff(10*time.Millisecond, 50*time.Millisecond))
	runner.Handle(event.ContentCreated, func(context.Context, event.Message) error {
		handled.Add(1)
		return nil
	})

	done := make(chan struct{})
	go func() {
		_ = runner.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return bus.Subscriptions() == 1 }, time.Second, 5*time.Millisecond)

	bus.SetUnreachable(true)
	assert.Equal(t, 0, bus.Subscriptions())
	time.Sleep(30 * time.Millisecond)
	bus.SetUnreachable(false)

	require.Eventually(t, func() bool { return bus.Subscriptions() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Publish(ctx, event.ContentCreated, event.Created{
		PostID: "p1", UserID: "u1", CreatedAt: time.Now().UTC(),
	}))
	assert.Eventually(t, func() bool { return handled.Load() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
