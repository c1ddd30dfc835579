package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"content-server/internal/loader"
	"content-server/internal/metric"
	"content-server/internal/models"
	"content-server/internal/vectorstore"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (f *fakeEmbedder) CreateEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type fakeLoader struct {
	result *loader.Result
	err    error
}

func (f *fakeLoader) LoadPath(_ context.Context, _, _, _ string) (*loader.Result, error) {
	return f.result, f.err
}

func newTestDeleter(store VectorStore) *Deleter {
	return NewDeleter(store, rate.NewLimiter(rate.Inf, 1), metric.NewNoop(),
		WithRetryBackoff(time.Millisecond, 2*time.Millisecond))
}

func newTestService(store VectorStore, emb Embedder, ld DocumentLoader) *IndexerService {
	return NewIndexerService(ld, store, emb, newTestDeleter(store), metric.NewNoop(), time.UTC, 2)
}

func TestIndexNoteReplacesPreviousGeneration(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	emb := &fakeEmbedder{}
	svc := newTestService(store, emb, nil)

	ns := models.PrivateNamespace(4)
	p := models.IndexNotePayload{CreatorID: 4, NoteID: 42, Type: models.NoteText, Title: "Groceries", Content: "milk and eggs", Namespace: ns}

	// A neighbouring note whose key shares a textual prefix must survive.
	require.NoError(t, store.Upsert(ctx, ns, []models.VectorRecord{{ID: "note-text-4#old", Values: []float32{1}}}))

	first, err := svc.IndexNote(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Upserted)

	p.Content = "milk, eggs and bread"
	second, err := svc.IndexNote(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Deleted)
	assert.Equal(t, 1, second.Upserted)

	records := store.Records(ns)
	require.Len(t, records, 2)
	assert.Contains(t, records, "note-text-4#old")

	for id, r := range records {
		if id == "note-text-4#old" {
			continue
		}
		assert.True(t, strings.HasPrefix(id, "note-text-42#"))
		assert.Equal(t, "Groceries\n\nmilk, eggs and bread", r.Metadata[models.TextKey])
		assert.Equal(t, "note-text-42", r.Metadata["source_key"])
	}
}

func TestIndexVoiceNoteHasTranscriptBanner(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc := newTestService(store, &fakeEmbedder{}, nil)

	_, err := svc.IndexNote(context.Background(), models.IndexNotePayload{
		CreatorID: 1, NoteID: 7, Type: models.NoteVoice, Title: "Memo", Content: "hello there", Namespace: "users/1",
	})
	require.NoError(t, err)

	for _, r := range store.Records("users/1") {
		assert.Equal(t, "Memo\n\n*Transcript*\n\nhello there", r.Metadata[models.TextKey])
	}
}

func TestIndexNoteRequiresNamespace(t *testing.T) {
	svc := newTestService(vectorstore.NewMemoryStore(), &fakeEmbedder{}, nil)
	_, err := svc.IndexNote(context.Background(), models.IndexNotePayload{NoteID: 1, Type: models.NoteText, Content: "x"})
	assert.Error(t, err)
}

func TestIndexDocumentsBatchesEmbeddings(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	emb := &fakeEmbedder{}
	svc := newTestService(store, emb, nil)

	docs := make([]models.Document, 0, 5)
	for i := range 5 {
		docs = append(docs, models.Document{
			SourceKey: fmt.Sprintf("users/1/f%d.txt", i),
			Namespace: "users/1",
			Text:      "content",
		})
	}

	result, err := svc.IndexDocuments(context.Background(), docs, true)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Documents)
	assert.Equal(t, 5, result.Upserted)
	// One chunk per document and a batch size of 2, per document call.
	assert.Len(t, emb.batches, 5)
	assert.Len(t, store.Records("users/1"), 5)
}

type failingUpsertStore struct {
	*vectorstore.MemoryStore
}

func (f failingUpsertStore) Upsert(context.Context, string, []models.VectorRecord) error {
	return errors.New("index unavailable")
}

func TestIndexDocumentsUpsertFailureAborts(t *testing.T) {
	store := failingUpsertStore{vectorstore.NewMemoryStore()}
	svc := newTestService(store, &fakeEmbedder{}, nil)

	docs := []models.Document{
		{SourceKey: "a.txt", Namespace: "users/1", Text: "a"},
		{SourceKey: "b.txt", Namespace: "users/1", Text: "b"},
	}
	result, err := svc.IndexDocuments(context.Background(), docs, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.txt")
	assert.Equal(t, 0, result.Documents)
}

func TestIndexDocumentsEmbeddingFailure(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc := newTestService(store, &fakeEmbedder{err: errors.New("rate limited")}, nil)

	_, err := svc.IndexDocuments(context.Background(), []models.Document{{SourceKey: "a.txt", Namespace: "users/1", Text: "a"}}, true)
	require.Error(t, err)
	assert.Empty(t, store.Records("users/1"))
}

func TestIndexPathCarriesLoaderCounts(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ld := &fakeLoader{result: &loader.Result{
		Documents: []models.Document{{SourceKey: "users/2/a.md", Namespace: "users/2", Text: "# A"}},
		Skipped:   2,
		Failed:    1,
	}}
	svc := newTestService(store, &fakeEmbedder{}, ld)

	result, err := svc.IndexPath(context.Background(), models.IndexPathPayload{UserID: 2, Bucket: "b", Path: "users/2"})
	require.NoError(t, err)
	assert.Equal(t, &models.JobResult{Documents: 1, Skipped: 2, Failed: 1, Upserted: 1}, result)
}

func TestIndexPathLoadError(t *testing.T) {
	svc := newTestService(vectorstore.NewMemoryStore(), &fakeEmbedder{}, &fakeLoader{err: errors.New("boom")})
	_, err := svc.IndexPath(context.Background(), models.IndexPathPayload{UserID: 2, Bucket: "b", Path: "x"})
	assert.Error(t, err)
}

func TestDeleteNoteScopes(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	svc := newTestService(store, &fakeEmbedder{}, nil)

	rec := []models.VectorRecord{{ID: "note-voice-9#a", Values: []float32{1}}}
	require.NoError(t, store.Upsert(ctx, "users/3", rec))
	require.NoError(t, store.Upsert(ctx, "users/3/private", rec))

	result, err := svc.DeleteNote(ctx, models.DeleteNotePayload{CreatorID: 3, NoteID: 9, Type: models.NoteVoice, Namespace: "users/3/private"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Len(t, store.Records("users/3"), 1, "private delete must not touch the public namespace")
	assert.Empty(t, store.Records("users/3/private"))

	// A note made private loses its public vectors and keeps the private ones.
	require.NoError(t, store.Upsert(ctx, "users/3/private", rec))
	result, err = svc.DeleteNote(ctx, models.DeleteNotePayload{CreatorID: 3, NoteID: 9, Type: models.NoteVoice, Namespace: "users/3"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, store.Records("users/3"))
	assert.Len(t, store.Records("users/3/private"), 1)
}

func TestDeleteNoteRequiresNamespace(t *testing.T) {
	svc := newTestService(vectorstore.NewMemoryStore(), &fakeEmbedder{}, nil)
	_, err := svc.DeleteNote(context.Background(), models.DeleteNotePayload{CreatorID: 3, NoteID: 9, Type: models.NoteText})
	assert.Error(t, err)
}

func TestDeleteFileUsesPathPrefix(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	svc := newTestService(store, &fakeEmbedder{}, nil)

	require.NoError(t, store.Upsert(ctx, "users/5", []models.VectorRecord{
		{ID: "users/5/docs/a.pdf#1", Values: []float32{1}},
		{ID: "users/5/docs/a.pdf#2", Values: []float32{1}},
		{ID: "users/5/other.txt#1", Values: []float32{1}},
	}))

	result, err := svc.DeleteFile(ctx, models.DeleteFilePayload{UserID: 5, Path: "/users/5/docs/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Len(t, store.Records("users/5"), 1)

	_, err = svc.DeleteFile(ctx, models.DeleteFilePayload{UserID: 5, Path: " / "})
	assert.Error(t, err)
}

func TestIndexChat(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	svc := newTestService(store, &fakeEmbedder{}, nil)

	created := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	summary := strings.Repeat("long summary ", 500)
	result, err := svc.IndexChat(context.Background(), models.IndexChatPayload{
		CreatorID: 1, UserID: 2, ChatID: 3, PostID: 11, Summary: summary,
	}, created)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Upserted, "chat summaries are never split")

	records := store.Records("users/1/chats/2")
	require.Len(t, records, 1)
	for id, r := range records {
		assert.True(t, strings.HasPrefix(id, "chat-3#"))
		text := r.Metadata[models.TextKey].(string)
		assert.True(t, strings.HasPrefix(text, "Chat summary from the afternoon of Tuesday, March 5, 2024 about post 11\n\n"))
	}
}

func TestIndexChatEmptySummary(t *testing.T) {
	svc := newTestService(vectorstore.NewMemoryStore(), &fakeEmbedder{}, nil)
	_, err := svc.IndexChat(context.Background(), models.IndexChatPayload{CreatorID: 1, UserID: 2, ChatID: 3, Summary: "  "}, time.Now())
	assert.Error(t, err)
}

func TestTimeOfDay(t *testing.T) {
	day := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC) }
	assert.Equal(t, "morning", TimeOfDay(day(0, 0)))
	assert.Equal(t, "morning", TimeOfDay(day(11, 59)))
	assert.Equal(t, "afternoon", TimeOfDay(day(12, 0)))
	assert.Equal(t, "afternoon", TimeOfDay(day(17, 59)))
	assert.Equal(t, "evening", TimeOfDay(day(18, 0)))
	assert.Equal(t, "evening", TimeOfDay(day(23, 59)))
}

func TestChatHeadingUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	svc := NewIndexerService(nil, vectorstore.NewMemoryStore(), &fakeEmbedder{}, nil, metric.NewNoop(), tokyo, 64)
	svc.deleter = newTestDeleter(svc.store)

	// 20:00 UTC is 05:00 the next day in Tokyo.
	created := time.Date(2024, 3, 5, 20, 0, 0, 0, time.UTC)
	_, err := svc.IndexChat(context.Background(), models.IndexChatPayload{CreatorID: 1, UserID: 2, ChatID: 3, Summary: "hi"}, created)
	require.NoError(t, err)

	store := svc.store.(*vectorstore.MemoryStore)
	for _, r := range store.Records("users/1/chats/2") {
		assert.Equal(t, "Chat summary from the morning of Wednesday, March 6, 2024\n\nhi", r.Metadata[models.TextKey])
	}
}
