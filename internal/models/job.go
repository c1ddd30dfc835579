package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType is the queue name a job is enqueued under.
type JobType string

const (
	JobIndexPath  JobType = "index-path"
	JobIndexNote  JobType = "index-note"
	JobDeleteNote JobType = "delete-note"
	JobIndexChat  JobType = "index-chat"
	JobDeleteFile JobType = "delete-file"
)

func (t JobType) Valid() bool {
	switch t {
	case JobIndexPath, JobIndexNote, JobDeleteNote, JobIndexChat, JobDeleteFile:
		return true
	}
	return false
}

// JobState mirrors the lifecycle recorded in the queue's status store.
type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

func (s JobState) Finished() bool {
	return s == StateCompleted || s == StateFailed
}

// Payload is implemented by exactly one struct per JobType.
type Payload interface {
	JobType() JobType
	// DedupKey identifies the unit of work; equal keys yield equal job ids.
	// Keys of indexing jobs carry a digest of the indexed text, so an edit
	// resubmitted while the previous job is queued becomes a job of its own.
	DedupKey() string
}

type NoteType string

const (
	NoteText  NoteType = "text"
	NoteVoice NoteType = "voice"
)

func (t NoteType) Valid() bool {
	return t == NoteText || t == NoteVoice
}

type IndexPathPayload struct {
	UserID int64  `json:"userId"`
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
}

func (p IndexPathPayload) JobType() JobType { return JobIndexPath }
func (p IndexPathPayload) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", p.UserID, p.Bucket, p.Path)
}

type IndexNotePayload struct {
	CreatorID int64     `json:"creatorId"`
	NoteID    int64     `json:"id"`
	Type      NoteType  `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	// Namespace is resolved by the gateway; a public note yields one job per namespace.
	Namespace string `json:"namespace"`
}

func (p IndexNotePayload) JobType() JobType { return JobIndexNote }
func (p IndexNotePayload) DedupKey() string {
	return p.Namespace + "|" + NoteSourceKey(p.Type, p.NoteID) + "|" + contentDigest(p.Title, p.Content)
}

type DeleteNotePayload struct {
	CreatorID int64    `json:"creatorId"`
	NoteID    int64    `json:"id"`
	Type      NoteType `json:"type"`
	// Namespace is one scope the note was indexed into; a public note is
	// deleted by one job per namespace so each scope can go independently.
	Namespace string `json:"namespace"`
}

func (p DeleteNotePayload) JobType() JobType { return JobDeleteNote }
func (p DeleteNotePayload) DedupKey() string {
	return p.Namespace + "|" + NoteSourceKey(p.Type, p.NoteID)
}

type IndexChatPayload struct {
	CreatorID int64  `json:"creatorId"`
	UserID    int64  `json:"userId"`
	ChatID    int64  `json:"chatId"`
	PostID    int64  `json:"postId,omitempty"`
	Summary   string `json:"summary"`
}

func (p IndexChatPayload) JobType() JobType { return JobIndexChat }
func (p IndexChatPayload) DedupKey() string {
	return fmt.Sprintf("%d|%d|%d|%s", p.CreatorID, p.UserID, p.ChatID,
		contentDigest(fmt.Sprint(p.PostID), p.Summary))
}

type DeleteFilePayload struct {
	UserID int64  `json:"userId"`
	Path   string `json:"path"`
}

func (p DeleteFilePayload) JobType() JobType { return JobDeleteFile }
func (p DeleteFilePayload) DedupKey() string {
	return fmt.Sprintf("%d|%s", p.UserID, p.Path)
}

func contentDigest(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}

var jobIDSpace = uuid.MustParse("6f1c2a4e-2b1d-4c55-9d8e-3a7f0b9c1e42")

// JobID derives the deterministic id of a payload.
func JobID(p Payload) string {
	return uuid.NewSHA1(jobIDSpace, []byte(string(p.JobType())+"|"+p.DedupKey())).String()
}

// Job is the queue's record of one unit of work.
type Job struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	State      JobState        `json:"state"`
	Attempts   int             `json:"attempts"`
	Error      string          `json:"error,omitempty"`
	Result     *JobResult      `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// JobResult summarizes what a finished job did to the vector index.
type JobResult struct {
	Documents int `json:"documents"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Upserted  int `json:"upserted"`
	Deleted   int `json:"deleted"`
}

// NewJob wraps a payload into a waiting job with its deterministic id.
func NewJob(p Payload, now time.Time) (*Job, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", p.JobType(), err)
	}
	return &Job{
		ID:        JobID(p),
		Type:      p.JobType(),
		Payload:   raw,
		State:     StateWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// DecodePayload returns the typed payload for the job's type tag.
func (j *Job) DecodePayload() (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch j.Type {
	case JobIndexPath:
		var v IndexPathPayload
		err = json.Unmarshal(j.Payload, &v)
		p = v
	case JobIndexNote:
		var v IndexNotePayload
		err = json.Unmarshal(j.Payload, &v)
		p = v
	case JobDeleteNote:
		var v DeleteNotePayload
		err = json.Unmarshal(j.Payload, &v)
		p = v
	case JobIndexChat:
		var v IndexChatPayload
		err = json.Unmarshal(j.Payload, &v)
		p = v
	case JobDeleteFile:
		var v DeleteFilePayload
		err = json.Unmarshal(j.Payload, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown job type %q", j.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return p, nil
}

// JobEvent is published whenever a job changes state.
type JobEvent struct {
	JobID  string     `json:"jobId"`
	Type   JobType    `json:"type"`
	State  JobState   `json:"state"`
	Error  string     `json:"error,omitempty"`
	Result *JobResult `json:"result,omitempty"`
	At     time.Time  `json:"at"`
}
