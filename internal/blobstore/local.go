package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore maps bucket/key to {root}/{bucket}/{key} on disk.
// Used for development and tests.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) resolve(bucket, key string) (string, error) {
	base := filepath.Join(s.root, filepath.Clean("/"+bucket))
	full := filepath.Join(base, filepath.FromSlash(path.Clean("/"+key)))
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes bucket %q", key, bucket)
	}
	return full, nil
}

func (s *LocalStore) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	base, err := s.resolve(bucket, "")
	if err != nil {
		return nil, err
	}

	var objects []Object
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s/%s: %w", bucket, prefix, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *LocalStore) Get(_ context.Context, bucket, key string) (*Blob, error) {
	full, err := s.resolve(bucket, key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", bucket, key, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(full))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Blob{Key: key, ContentType: contentType, Data: data}, nil
}
