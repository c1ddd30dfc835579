// Package loader turns blob-store objects into indexable documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"content-server/internal/blobstore"
	"content-server/internal/models"
)

// ErrUnsupported marks objects whose content type has no parser. Callers skip them.
var ErrUnsupported = errors.New("unsupported content type")

type Loader struct {
	store  blobstore.Store
	runner CommandRunner
}

type Option func(*Loader)

// WithCommandRunner replaces the runner used for external extractors (pdftotext).
func WithCommandRunner(r CommandRunner) Option {
	return func(l *Loader) {
		l.runner = r
	}
}

func New(store blobstore.Store, opts ...Option) *Loader {
	l := &Loader{
		store:  store,
		runner: ExecRunner{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result is what a path walk produced.
type Result struct {
	Documents []models.Document
	// Skipped counts unsupported or empty files.
	Skipped int
	// Failed counts files that could not be downloaded or parsed.
	Failed int
}

// LoadPath loads every supported file below path. When path names a single
// object rather than a directory, only that object is loaded. Failures of
// individual files in a directory are logged and the walk continues.
func (l *Loader) LoadPath(ctx context.Context, bucket, p, namespace string) (*Result, error) {
	objects, err := l.store.List(ctx, bucket, blobstore.DirPrefix(p))
	if err != nil {
		return nil, fmt.Errorf("failed to list path: %w", err)
	}

	result := &Result{}

	if len(objects) == 0 {
		key := strings.Trim(p, "/")
		doc, err := l.LoadFile(ctx, bucket, key, namespace)
		switch {
		case errors.Is(err, ErrUnsupported):
			log.Warn().Ctx(ctx).Str("key", key).Err(err).Msg("skipping file")
			result.Skipped++
		case err != nil:
			return nil, err
		case strings.TrimSpace(doc.Text) == "":
			result.Skipped++
		default:
			result.Documents = append(result.Documents, doc)
		}
		return result, nil
	}

	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := l.LoadFile(ctx, bucket, obj.Key, namespace)
		if errors.Is(err, ErrUnsupported) {
			log.Warn().Ctx(ctx).Str("key", obj.Key).Err(err).Msg("skipping file")
			result.Skipped++
			continue
		}
		if err != nil {
			log.Error().Ctx(ctx).Str("key", obj.Key).Err(err).Msg("failed to load file")
			result.Failed++
			continue
		}
		if strings.TrimSpace(doc.Text) == "" {
			log.Debug().Ctx(ctx).Str("key", obj.Key).Msg("skipping empty file")
			result.Skipped++
			continue
		}
		result.Documents = append(result.Documents, doc)
	}

	log.Info().Ctx(ctx).
		Str("bucket", bucket).
		Str("path", p).
		Int("documents", len(result.Documents)).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("Loaded path")

	return result, nil
}

// LoadFile downloads and parses one object. The source key is the object key.
func (l *Loader) LoadFile(ctx context.Context, bucket, key, namespace string) (models.Document, error) {
	blob, err := l.store.Get(ctx, bucket, key)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to download %s: %w", key, err)
	}

	ct, ok := DetectContentType(blob.ContentType, key)
	if !ok {
		return models.Document{}, fmt.Errorf("%s (%s): %w", key, blob.ContentType, ErrUnsupported)
	}

	parsed, err := l.parse(ctx, ct, blob.Data)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to parse %s: %w", key, err)
	}

	filename := path.Base(key)
	return models.Document{
		SourceKey: key,
		Namespace: namespace,
		Text:      parsed.text,
		Metadata: models.DocumentMetadata{
			ContentType: ct,
			Bucket:      bucket,
			Filename:    filename,
			Title:       parsed.title,
			Transcript:  ct == models.ContentVTT,
		},
	}, nil
}

var mimeTypes = map[string]models.ContentType{
	"text/plain":            models.ContentText,
	"text/html":             models.ContentHTML,
	"application/xhtml+xml": models.ContentHTML,
	"application/json":      models.ContentJSON,
	"text/markdown":         models.ContentMarkdown,
	"text/x-markdown":       models.ContentMarkdown,
	"text/vtt":              models.ContentVTT,
	"application/pdf":       models.ContentPDF,

	string(models.ContentDOCX): models.ContentDOCX,
}

var extensions = map[string]models.ContentType{
	".txt":      models.ContentText,
	".html":     models.ContentHTML,
	".htm":      models.ContentHTML,
	".json":     models.ContentJSON,
	".md":       models.ContentMarkdown,
	".markdown": models.ContentMarkdown,
	".vtt":      models.ContentVTT,
	".pdf":      models.ContentPDF,
	".docx":     models.ContentDOCX,
}

// DetectContentType maps the stored content type to a parser. Uploads often
// arrive as application/octet-stream or text/plain, in which case the file
// extension decides.
func DetectContentType(declared, key string) (models.ContentType, bool) {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(declared))
	}

	byExt, extOK := extensions[strings.ToLower(path.Ext(key))]

	switch mediaType {
	case "", "application/octet-stream", "binary/octet-stream":
		return byExt, extOK
	case "text/plain":
		if extOK && (byExt == models.ContentMarkdown || byExt == models.ContentVTT) {
			return byExt, true
		}
	}

	ct, ok := mimeTypes[mediaType]
	return ct, ok
}
