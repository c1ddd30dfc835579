// Package blobstore reads user files from bucketed object storage.
package blobstore

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("object not found")

// Object is a listed file. Directory placeholder keys are never returned.
type Object struct {
	Key  string
	Size int64
}

// Blob is a downloaded object.
type Blob struct {
	Key         string
	ContentType string
	Data        []byte
}

// Store is implemented by S3Store and LocalStore.
type Store interface {
	// List returns every object below prefix, recursively, ordered by key.
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	Get(ctx context.Context, bucket, key string) (*Blob, error)
}

// DirPrefix turns a user supplied path into a listing prefix that only
// matches the directory's own children ("docs" must not match "docs2/a.txt").
func DirPrefix(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	return path + "/"
}
