package services

import (
	"context"

	"content-server/internal/loader"
	"content-server/internal/models"
)

/*
LEARNING: GO INTERFACE BEST PRACTICE

"Accept interfaces, return structs" - Rob Pike

Interfaces are defined where they are USED. This package consumes the vector
store, the embeddings client and the document loader, so their interfaces
live here and only declare the methods the indexer calls. Tests swap in the
in-memory vector store and small fakes.
*/

// VectorStore is satisfied by every vectorstore backend.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error
	ListIDs(ctx context.Context, namespace, prefix string, limit int) ([]string, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

// Embedder turns texts into vectors, one per text, in input order.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentLoader reads documents from blob storage.
type DocumentLoader interface {
	LoadPath(ctx context.Context, bucket, path, namespace string) (*loader.Result, error)
}
