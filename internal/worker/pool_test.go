package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-server/internal/metric"
	"content-server/internal/models"
)

type fakeQueue struct {
	mu        sync.Mutex
	pending   []*models.Job
	completed map[string]*models.JobResult
	failed    map[string]error
	recovered bool
}

func newFakeQueue(jobs ...*models.Job) *fakeQueue {
	return &fakeQueue{
		pending:   jobs,
		completed: make(map[string]*models.JobResult),
		failed:    make(map[string]error),
	}
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error) {
	q.mu.Lock()
	if len(q.pending) > 0 {
		job := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		job.Attempts++
		return job, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (q *fakeQueue) Complete(_ context.Context, job *models.Job, result *models.JobResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed[job.ID] = result
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, job *models.Job, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[job.ID] = jobErr
	return nil
}

func (q *fakeQueue) RecoverStalled(context.Context) (int, error) {
	q.recovered = true
	return 0, nil
}

func (q *fakeQueue) finished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.completed) + len(q.failed)
}

type fakeHandlers struct {
	mu        sync.Mutex
	calls     []models.JobType
	chatTime  time.Time
	failPaths bool
}

func (h *fakeHandlers) record(t models.JobType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, t)
}

func (h *fakeHandlers) IndexPath(context.Context, models.IndexPathPayload) (*models.JobResult, error) {
	h.record(models.JobIndexPath)
	if h.failPaths {
		return nil, errors.New("bucket unavailable")
	}
	return &models.JobResult{Documents: 2}, nil
}

func (h *fakeHandlers) IndexNote(context.Context, models.IndexNotePayload) (*models.JobResult, error) {
	h.record(models.JobIndexNote)
	return &models.JobResult{Documents: 1}, nil
}

func (h *fakeHandlers) DeleteNote(context.Context, models.DeleteNotePayload) (*models.JobResult, error) {
	h.record(models.JobDeleteNote)
	return &models.JobResult{Deleted: 1}, nil
}

func (h *fakeHandlers) IndexChat(_ context.Context, _ models.IndexChatPayload, createdAt time.Time) (*models.JobResult, error) {
	h.record(models.JobIndexChat)
	h.mu.Lock()
	h.chatTime = createdAt
	h.mu.Unlock()
	return &models.JobResult{Documents: 1}, nil
}

func (h *fakeHandlers) DeleteFile(context.Context, models.DeleteFilePayload) (*models.JobResult, error) {
	h.record(models.JobDeleteFile)
	return &models.JobResult{Deleted: 4}, nil
}

func mustJob(t *testing.T, p models.Payload, created time.Time) *models.Job {
	t.Helper()
	job, err := models.NewJob(p, created)
	require.NoError(t, err)
	return job
}

func TestDispatchRoutesEveryType(t *testing.T) {
	created := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	h := &fakeHandlers{}
	pool := NewPool(newFakeQueue(), h, metric.NewNoop(), 1)

	payloads := []models.Payload{
		models.IndexPathPayload{UserID: 1, Bucket: "b", Path: "p"},
		models.IndexNotePayload{CreatorID: 1, NoteID: 2, Type: models.NoteText, Namespace: "users/1"},
		models.DeleteNotePayload{CreatorID: 1, NoteID: 2, Type: models.NoteText},
		models.IndexChatPayload{CreatorID: 1, UserID: 2, ChatID: 3, Summary: "s"},
		models.DeleteFilePayload{UserID: 1, Path: "a"},
	}
	for _, p := range payloads {
		_, err := pool.Dispatch(context.Background(), mustJob(t, p, created))
		require.NoError(t, err)
	}

	assert.Equal(t, []models.JobType{
		models.JobIndexPath, models.JobIndexNote, models.JobDeleteNote, models.JobIndexChat, models.JobDeleteFile,
	}, h.calls)
	assert.Equal(t, created, h.chatTime)
}

func TestDispatchUnknownType(t *testing.T) {
	pool := NewPool(newFakeQueue(), &fakeHandlers{}, metric.NewNoop(), 1)
	_, err := pool.Dispatch(context.Background(), &models.Job{ID: "x", Type: "reindex", Payload: []byte(`{}`)})
	assert.Error(t, err)
}

func TestPoolRecordsOutcomes(t *testing.T) {
	now := time.Now()
	ok := mustJob(t, models.DeleteFilePayload{UserID: 1, Path: "a"}, now)
	bad := mustJob(t, models.IndexPathPayload{UserID: 1, Bucket: "b", Path: "p"}, now)

	q := newFakeQueue(ok, bad)
	pool := NewPool(q, &fakeHandlers{failPaths: true}, metric.NewNoop(), 2)
	require.NoError(t, pool.Start(context.Background()))

	assert.Eventually(t, func() bool { return q.finished() == 2 }, 2*time.Second, 10*time.Millisecond)
	pool.Shutdown()

	assert.True(t, q.recovered)
	assert.Equal(t, &models.JobResult{Deleted: 4}, q.completed[ok.ID])
	require.Contains(t, q.failed, bad.ID)
	assert.EqualError(t, q.failed[bad.ID], "bucket unavailable")
}

func TestShutdownWithIdleWorkers(t *testing.T) {
	pool := NewPool(newFakeQueue(), &fakeHandlers{}, metric.NewNoop(), 3)
	require.NoError(t, pool.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return")
	}
}
