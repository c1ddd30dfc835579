package models

import "fmt"

func PublicNamespace(userID int64) string {
	return fmt.Sprintf("users/%d", userID)
}

func PrivateNamespace(userID int64) string {
	return fmt.Sprintf("users/%d/private", userID)
}

func ChatNamespace(creatorID, userID int64) string {
	return fmt.Sprintf("users/%d/chats/%d", creatorID, userID)
}

// NoteSourceKey is the vector-id prefix shared by every chunk of a note.
func NoteSourceKey(t NoteType, id int64) string {
	return fmt.Sprintf("note-%s-%d", t, id)
}

func ChatSourceKey(chatID int64) string {
	return fmt.Sprintf("chat-%d", chatID)
}

// SourcePrefix is the id prefix of every chunk derived from sourceKey.
// The separator keeps note-text-4 from matching note-text-42.
func SourcePrefix(sourceKey string) string {
	return sourceKey + ChunkSeparator
}
