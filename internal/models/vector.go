package models

// TextKey is the metadata field holding the chunk text for retrieval.
const TextKey = "text"

// VectorRecord is an embedded chunk as stored in the vector index.
type VectorRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RecordMetadata flattens a chunk into the retrievable payload of its vector.
func RecordMetadata(c Chunk) map[string]any {
	md := map[string]any{
		TextKey:        c.Text,
		"source_key":   c.SourceKey,
		"chunk_index":  c.Index,
		"content_type": string(c.Metadata.ContentType),
	}
	if c.Metadata.Bucket != "" {
		md["bucket"] = c.Metadata.Bucket
	}
	if c.Metadata.Filename != "" {
		md["filename"] = c.Metadata.Filename
	}
	if c.Metadata.Title != "" {
		md["title"] = c.Metadata.Title
	}
	if c.Metadata.CreatedAt != nil {
		md["created_at"] = c.Metadata.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return md
}
