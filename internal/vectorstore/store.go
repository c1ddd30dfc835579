// Package vectorstore stores chunk embeddings in a namespaced vector index.
//
// Every backend supports the three operations the indexer needs: upsert,
// list ids by prefix, delete ids. Listing returns the first page only; the
// deleter re-lists after each delete until the page comes back empty.
package vectorstore

import (
	"context"
	"errors"

	"content-server/internal/models"
)

// ErrNotFound means the namespace or ids do not exist. Deleting something
// already gone is not a failure.
var ErrNotFound = errors.New("vectors not found")

// MaxPageSize is the largest page ListIDs returns.
const MaxPageSize = 100

type Store interface {
	Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error
	// ListIDs returns up to limit ids in namespace that start with prefix.
	ListIDs(ctx context.Context, namespace, prefix string, limit int) ([]string, error)
	DeleteIDs(ctx context.Context, namespace string, ids []string) error
}

// NamespaceAdmin is implemented by backends that can enumerate and drop
// whole namespaces (used by the delete-index tool).
type NamespaceAdmin interface {
	ListNamespaces(ctx context.Context) ([]string, error)
	DeleteNamespace(ctx context.Context, namespace string) error
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
