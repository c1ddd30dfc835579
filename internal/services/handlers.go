package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"content-server/internal/metric"
	"content-server/internal/middleware"
	"content-server/internal/models"
)

// IndexPath loads every supported file under the path and indexes it into
// the user's public namespace.
func (s *IndexerService) IndexPath(ctx context.Context, p models.IndexPathPayload) (*models.JobResult, error) {
	ctx, span := middleware.StartSpan(ctx, "Indexer.IndexPath",
		attribute.String("bucket", p.Bucket),
		attribute.String("path", p.Path),
	)
	defer span.End()

	loaded, err := s.loader.LoadPath(ctx, p.Bucket, p.Path, models.PublicNamespace(p.UserID))
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to load %s/%s: %w", p.Bucket, p.Path, err)
	}
	if loaded.Skipped > 0 {
		s.metrics.Count(metric.DocumentsSkipped, int64(loaded.Skipped), nil)
	}

	result, err := s.IndexDocuments(ctx, loaded.Documents, true)
	if result != nil {
		result.Skipped = loaded.Skipped
		result.Failed = loaded.Failed
	}
	return result, err
}

// IndexNote indexes a text or voice note into the namespace chosen at enqueue time.
func (s *IndexerService) IndexNote(ctx context.Context, p models.IndexNotePayload) (*models.JobResult, error) {
	if p.Namespace == "" {
		return nil, errors.New("note job has no namespace")
	}

	md := models.DocumentMetadata{
		ContentType: models.ContentNote,
		Title:       p.Title,
		Header:      p.Title,
		Transcript:  p.Type == models.NoteVoice,
	}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt
		md.CreatedAt = &created
	}

	doc := models.Document{
		SourceKey: models.NoteSourceKey(p.Type, p.NoteID),
		Namespace: p.Namespace,
		Text:      p.Content,
		Metadata:  md,
	}
	return s.IndexDocuments(ctx, []models.Document{doc}, true)
}

// DeleteNote removes a note's vectors from one namespace. The gateway queues
// one job per scope the note was indexed into.
func (s *IndexerService) DeleteNote(ctx context.Context, p models.DeleteNotePayload) (*models.JobResult, error) {
	if p.Namespace == "" {
		return nil, errors.New("note namespace is not set")
	}
	prefix := models.SourcePrefix(models.NoteSourceKey(p.Type, p.NoteID))
	return s.deleteIn(ctx, p.Namespace, prefix)
}

// DeleteFile removes every vector whose id starts with the file path. A
// directory path removes everything indexed beneath it.
func (s *IndexerService) DeleteFile(ctx context.Context, p models.DeleteFilePayload) (*models.JobResult, error) {
	prefix := strings.TrimPrefix(strings.TrimSpace(p.Path), "/")
	if prefix == "" {
		return nil, errors.New("refusing to delete with an empty path prefix")
	}
	return s.deleteIn(ctx, models.PublicNamespace(p.UserID), prefix)
}

func (s *IndexerService) deleteIn(ctx context.Context, namespace, prefix string) (*models.JobResult, error) {
	n, err := s.deleter.DeleteByPrefix(ctx, namespace, prefix)
	result := &models.JobResult{Deleted: n}
	if err != nil {
		return result, err
	}
	log.Info().Ctx(ctx).Str("namespace", namespace).Str("prefix", prefix).Int("deleted", n).Msg("Deleted vectors")
	return result, nil
}

// IndexChat indexes a chat summary as a single chunk. createdAt is the job's
// creation time and dates the heading.
func (s *IndexerService) IndexChat(ctx context.Context, p models.IndexChatPayload, createdAt time.Time) (*models.JobResult, error) {
	if strings.TrimSpace(p.Summary) == "" {
		return nil, errors.New("chat summary is empty")
	}

	local := createdAt.In(s.location)
	doc := models.Document{
		SourceKey: models.ChatSourceKey(p.ChatID),
		Namespace: models.ChatNamespace(p.CreatorID, p.UserID),
		Text:      ChatHeading(local, p.PostID) + "\n\n" + strings.TrimSpace(p.Summary),
		Metadata: models.DocumentMetadata{
			ContentType: models.ContentChat,
			CreatedAt:   &createdAt,
		},
	}
	return s.IndexDocuments(ctx, []models.Document{doc}, false)
}

// TimeOfDay buckets a local clock time.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// ChatHeading names when a chat took place, e.g.
// "Chat summary from the morning of Tuesday, March 5, 2024".
func ChatHeading(local time.Time, postID int64) string {
	h := fmt.Sprintf("Chat summary from the %s of %s", TimeOfDay(local), local.Format("Monday, January 2, 2006"))
	if postID > 0 {
		h += fmt.Sprintf(" about post %d", postID)
	}
	return h
}
