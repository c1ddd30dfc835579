package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentType is the normalized format a loaded document was parsed from.
type ContentType string

const (
	ContentText     ContentType = "text/plain"
	ContentHTML     ContentType = "text/html"
	ContentJSON     ContentType = "application/json"
	ContentMarkdown ContentType = "text/markdown"
	ContentVTT      ContentType = "text/vtt"
	ContentPDF      ContentType = "application/pdf"
	ContentDOCX     ContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentNote     ContentType = "note"
	ContentChat     ContentType = "chat"
)

// DocumentMetadata travels with every chunk into the vector record.
// Header, Filename and Transcript also select the banners prefixed to chunk text.
type DocumentMetadata struct {
	ContentType ContentType `json:"content_type"`
	Bucket      string      `json:"bucket,omitempty"`
	Filename    string      `json:"filename,omitempty"`
	Title       string      `json:"title,omitempty"`
	Header      string      `json:"header,omitempty"`
	Transcript  bool        `json:"transcript,omitempty"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
}

// Document is one unit of content to index.
type Document struct {
	SourceKey string
	Namespace string
	Text      string
	Metadata  DocumentMetadata
}

const ChunkSeparator = "#"

// Chunk is a bounded span of a document's text, banners already applied.
type Chunk struct {
	ID        string
	SourceKey string
	Index     int
	Text      string
	Metadata  DocumentMetadata
}

// NewChunkID returns {sourceKey}#{randomSuffix}.
func NewChunkID(sourceKey string) string {
	return sourceKey + ChunkSeparator + uuid.NewString()
}
