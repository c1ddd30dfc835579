package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobIDDeterministic(t *testing.T) {
	a := IndexPathPayload{UserID: 7, Bucket: "creators", Path: "users/7/docs"}
	b := IndexPathPayload{UserID: 7, Bucket: "creators", Path: "users/7/docs"}
	c := IndexPathPayload{UserID: 7, Bucket: "creators", Path: "users/7/other"}

	assert.Equal(t, JobID(a), JobID(b))
	assert.NotEqual(t, JobID(a), JobID(c))

	// Same key, different job type must not collide.
	del := DeleteFilePayload{UserID: 7, Path: "users/7/docs"}
	assert.NotEqual(t, JobID(a), JobID(del))
}

func TestJobIDPublicNoteNamespaces(t *testing.T) {
	pub := IndexNotePayload{CreatorID: 3, NoteID: 42, Type: NoteText, Namespace: PublicNamespace(3)}
	priv := pub
	priv.Namespace = PrivateNamespace(3)

	assert.NotEqual(t, JobID(pub), JobID(priv))
}

func TestDecodePayload(t *testing.T) {
	created := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	tests := []Payload{
		IndexPathPayload{UserID: 1, Bucket: "b", Path: "p"},
		IndexNotePayload{CreatorID: 1, NoteID: 2, Type: NoteVoice, Title: "t", Content: "c", CreatedAt: created, Namespace: "users/1"},
		DeleteNotePayload{CreatorID: 1, NoteID: 2, Type: NoteText, Namespace: "users/1"},
		IndexChatPayload{CreatorID: 1, UserID: 2, ChatID: 3, PostID: 4, Summary: "s"},
		DeleteFilePayload{UserID: 1, Path: "users/1/a.txt"},
	}

	for _, p := range tests {
		t.Run(string(p.JobType()), func(t *testing.T) {
			job, err := NewJob(p, created)
			require.NoError(t, err)
			assert.Equal(t, StateWaiting, job.State)
			assert.Equal(t, JobID(p), job.ID)

			decoded, err := job.DecodePayload()
			require.NoError(t, err)
			assert.Equal(t, p, decoded)
		})
	}
}

func TestDecodePayloadUnknownType(t *testing.T) {
	job := &Job{ID: "x", Type: "reindex-everything", Payload: json.RawMessage(`{}`)}
	_, err := job.DecodePayload()
	assert.Error(t, err)
}

func TestDeleteNoteJobPerScope(t *testing.T) {
	public := DeleteNotePayload{CreatorID: 9, NoteID: 42, Type: NoteVoice, Namespace: PublicNamespace(9)}
	private := public
	private.Namespace = PrivateNamespace(9)
	assert.NotEqual(t, JobID(public), JobID(private))
}

func TestJobIDTracksEditedContent(t *testing.T) {
	note := IndexNotePayload{CreatorID: 3, NoteID: 42, Type: NoteText, Title: "Groceries", Content: "milk", Namespace: "users/3/private"}
	edited := note
	edited.Content = "milk, eggs"
	retitled := note
	retitled.Title = "Shopping"
	later := note
	later.CreatedAt = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	assert.NotEqual(t, JobID(note), JobID(edited))
	assert.NotEqual(t, JobID(note), JobID(retitled))
	assert.Equal(t, JobID(note), JobID(later), "identical content resubmitted is the same job")

	chat := IndexChatPayload{CreatorID: 1, UserID: 2, ChatID: 3, Summary: "first"}
	newer := chat
	newer.Summary = "second"
	aboutPost := chat
	aboutPost.PostID = 7
	assert.NotEqual(t, JobID(chat), JobID(newer))
	assert.NotEqual(t, JobID(chat), JobID(aboutPost))
	assert.Equal(t, JobID(chat), JobID(IndexChatPayload{CreatorID: 1, UserID: 2, ChatID: 3, Summary: "first"}))
}

func TestSourceKeys(t *testing.T) {
	assert.Equal(t, "note-voice-42", NoteSourceKey(NoteVoice, 42))
	assert.Equal(t, "note-voice-42#", SourcePrefix(NoteSourceKey(NoteVoice, 42)))
	assert.Equal(t, "chat-5", ChatSourceKey(5))

	id := NewChunkID("users/1/a.txt")
	assert.True(t, strings.HasPrefix(id, "users/1/a.txt#"))
	assert.NotEqual(t, id, NewChunkID("users/1/a.txt"))
}

func TestFlexibleID(t *testing.T) {
	var body struct {
		A FlexibleID `json:"a"`
		B FlexibleID `json:"b"`
		C FlexibleID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 12, "b": " 34 "}`), &body))
	assert.Equal(t, FlexibleID{Value: 12, Set: true}, body.A)
	assert.Equal(t, FlexibleID{Value: 34, Set: true}, body.B)
	assert.False(t, body.C.Set)
	assert.False(t, body.C.Positive())

	var bad struct {
		ChatID FlexibleID `json:"chatId"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"chatId": "abc"}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`{"chatId": 1.5}`), &bad))
}
