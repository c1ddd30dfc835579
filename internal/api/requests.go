package api

import (
	"strings"
	"time"

	"content-server/internal/models"
)

// validationError is reported to the caller as a 400.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalid(msg string) error { return &validationError{msg: msg} }

type indexPathRequest struct {
	UserID models.FlexibleID `json:"userId"`
	Bucket string            `json:"bucket"`
	Path   string            `json:"path"`
}

func (r indexPathRequest) payload() (models.IndexPathPayload, error) {
	path := strings.TrimSpace(r.Path)
	bucket := strings.TrimSpace(r.Bucket)
	switch {
	case !r.UserID.Positive():
		return models.IndexPathPayload{}, invalid("userId is required")
	case path == "":
		return models.IndexPathPayload{}, invalid("path is required")
	case bucket == "":
		return models.IndexPathPayload{}, invalid("bucket is required")
	}
	return models.IndexPathPayload{UserID: r.UserID.Value, Bucket: bucket, Path: path}, nil
}

type indexNoteRequest struct {
	CreatorID models.FlexibleID `json:"creatorId"`
	ID        models.FlexibleID `json:"id"`
	Type      models.NoteType   `json:"type"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Public    bool              `json:"public"`
	CreatedAt *time.Time        `json:"createdAt"`
}

// payloads returns one job per namespace the note is visible in.
func (r indexNoteRequest) payloads(now time.Time) ([]models.IndexNotePayload, error) {
	switch {
	case !r.Type.Valid():
		return nil, invalid("type must be text or voice")
	case !r.ID.Positive():
		return nil, invalid("id is required")
	case !r.CreatorID.Positive():
		return nil, invalid("creatorId is required")
	case strings.TrimSpace(r.Content) == "":
		return nil, invalid("content is required")
	case strings.TrimSpace(r.Title) == "":
		return nil, invalid("title is required")
	}

	created := now
	if r.CreatedAt != nil {
		created = *r.CreatedAt
	}
	base := models.IndexNotePayload{
		CreatorID: r.CreatorID.Value,
		NoteID:    r.ID.Value,
		Type:      r.Type,
		Title:     strings.TrimSpace(r.Title),
		Content:   r.Content,
		CreatedAt: created.UTC(),
	}

	namespaces := noteNamespaces(base.CreatorID, r.Public)
	out := make([]models.IndexNotePayload, 0, len(namespaces))
	for _, ns := range namespaces {
		p := base
		p.Namespace = ns
		out = append(out, p)
	}
	return out, nil
}

type indexChatRequest struct {
	CreatorID models.FlexibleID `json:"creatorId"`
	UserID    models.FlexibleID `json:"userId"`
	ChatID    models.FlexibleID `json:"chatId"`
	PostID    models.FlexibleID `json:"postId"`
	Summary   string            `json:"summary"`
}

func (r indexChatRequest) payload() (models.IndexChatPayload, error) {
	switch {
	case !r.CreatorID.Positive():
		return models.IndexChatPayload{}, invalid("creatorId is required")
	case !r.UserID.Positive():
		return models.IndexChatPayload{}, invalid("userId is required")
	case !r.ChatID.Positive():
		return models.IndexChatPayload{}, invalid("chatId is required")
	case strings.TrimSpace(r.Summary) == "":
		return models.IndexChatPayload{}, invalid("summary is required")
	}
	return models.IndexChatPayload{
		CreatorID: r.CreatorID.Value,
		UserID:    r.UserID.Value,
		ChatID:    r.ChatID.Value,
		PostID:    r.PostID.Value,
		Summary:   r.Summary,
	}, nil
}

type deleteNoteRequest struct {
	CreatorID models.FlexibleID `json:"creatorId"`
	Public    bool              `json:"public"`
	Type      models.NoteType   `json:"type"`
}

// payloads returns one job per namespace the note was indexed into, public
// scope first, mirroring indexNoteRequest.payloads.
func (r deleteNoteRequest) payloads(noteID models.FlexibleID) ([]models.DeleteNotePayload, error) {
	switch {
	case !noteID.Positive():
		return nil, invalid("note id is required")
	case !r.CreatorID.Positive():
		return nil, invalid("creatorId is required")
	case !r.Type.Valid():
		return nil, invalid("type must be text or voice")
	}

	out := make([]models.DeleteNotePayload, 0, 2)
	for _, ns := range noteNamespaces(r.CreatorID.Value, r.Public) {
		out = append(out, models.DeleteNotePayload{
			CreatorID: r.CreatorID.Value,
			NoteID:    noteID.Value,
			Type:      r.Type,
			Namespace: ns,
		})
	}
	return out, nil
}

func noteNamespaces(creatorID int64, public bool) []string {
	if public {
		return []string{models.PublicNamespace(creatorID), models.PrivateNamespace(creatorID)}
	}
	return []string{models.PrivateNamespace(creatorID)}
}

type deleteFileRequest struct {
	UserID models.FlexibleID `json:"userId"`
	Path   string            `json:"path"`
}

func (r deleteFileRequest) payload() (models.DeleteFilePayload, error) {
	path := strings.TrimPrefix(strings.TrimSpace(r.Path), "/")
	switch {
	case !r.UserID.Positive():
		return models.DeleteFilePayload{}, invalid("userId is required")
	case path == "":
		return models.DeleteFilePayload{}, invalid("path is required")
	}
	return models.DeleteFilePayload{UserID: r.UserID.Value, Path: path}, nil
}
