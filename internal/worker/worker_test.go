package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-classroom/backend/internal/models"
	"github.com/aura-classroom/backend/internal/testsupport"
	"github.com/aura-classroom/backend/pkg/queue"
	"github.com/aura-classroom/backend/pkg/storage"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]int64
	heads   int
}

func (f *fakeObjects) Bucket() string { return "rec" }

func (f *fakeObjects) HeadObject(_ context.Context, bucket, key string) (*storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heads++
	size, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.ObjectInfo{Size: size, ContentType: "video/mp4"}, nil
}

func artifactJob(t *testing.T, p queue.ArtifactPayload) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return &queue.Job{ID: uuid.NewString(), Type: queue.JobTypeArtifactFinalize, Payload: raw}
}

func completedRoom(store *testsupport.RoomStore, loc string) *models.Room {
	return store.Put(&models.Room{Status: models.RoomStatusEnded, RecordingStatus: models.RecordingStatusCompleted, ArtifactLocation: &loc})
}

func TestProcessStoresSize(t *testing.T) {
	store := testsupport.NewRoomStore()
	loc := "s3://rec/recordings/maths.mp4"
	room := completedRoom(store, loc)
	objects := &fakeObjects{objects: map[string]int64{"rec/recordings/maths.mp4": 4096}}
	p := NewArtifactProcessor(nil, objects, store, nil)

	require.NoError(t, p.Process(context.Background(), artifactJob(t, queue.ArtifactPayload{RoomID: room.ID, JobID: "EG_1", Location: loc})))
	got := store.Snapshot(room.ID)
	require.NotNil(t, got.ArtifactSizeBytes)
	assert.Equal(t, int64(4096), *got.ArtifactSizeBytes)
}

func TestProcessErrors(t *testing.T) {
	store := testsupport.NewRoomStore()
	room := completedRoom(store, "s3://rec/missing.mp4")
	p := NewArtifactProcessor(nil, &fakeObjects{objects: map[string]int64{}}, store, nil)

	err := p.Process(context.Background(), artifactJob(t, queue.ArtifactPayload{RoomID: room.ID, Location: "s3://rec/missing.mp4"}))
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	err = p.Process(context.Background(), artifactJob(t, queue.ArtifactPayload{RoomID: room.ID, Location: "ftp://nowhere"}))
	assert.Error(t, err)

	err = p.Process(context.Background(), &queue.Job{Type: "other"})
	assert.Error(t, err)
	assert.Nil(t, store.Snapshot(room.ID).ArtifactSizeBytes)
}

func TestRunRetriesThenDeadLetters(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := queue.NewQueue(rdb, nil)

	store := testsupport.NewRoomStore()
	objects := &fakeObjects{objects: map[string]int64{"rec/ok.mp4": 10}}
	ok := completedRoom(store, "s3://rec/ok.mp4")
	lost := completedRoom(store, "s3://rec/lost.mp4")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.EnqueueArtifact(ctx, queue.ArtifactPayload{RoomID: lost.ID, Location: "s3://rec/lost.mp4"}))
	require.NoError(t, q.EnqueueArtifact(ctx, queue.ArtifactPayload{RoomID: ok.ID, Location: "s3://rec/ok.mp4"}))

	p := NewArtifactProcessor(q, objects, store, nil)
	p.backoff = time.Millisecond
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	require.Eventually(t, func() bool {
		dlq, _ := mr.List(queue.QueueDLQ)
		return len(dlq) == 1 && store.Snapshot(ok.ID).ArtifactSizeBytes != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(10), *store.Snapshot(ok.ID).ArtifactSizeBytes)
	assert.Nil(t, store.Snapshot(lost.ID).ArtifactSizeBytes)

	dlq, err := mr.List(queue.QueueDLQ)
	require.NoError(t, err)
	var dead queue.Job
	require.NoError(t, json.Unmarshal([]byte(dlq[0]), &dead))
	assert.Equal(t, queue.MaxRetries, dead.Attempt)

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not stop")
	}
}
