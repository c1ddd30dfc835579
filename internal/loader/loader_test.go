package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-server/internal/blobstore"
	"content-server/internal/models"
)

type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	return m.output, m.err
}

func writeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, content, 0o644))
}

const sampleVTT = `WEBVTT
Kind: captions
Language: en
---
00:00:01.000 --> 00:00:04.000
Hello there.

00:00:05.000 --> 00:00:07.500 align:start
General Kenobi.
`

func TestStripVTT(t *testing.T) {
	assert.Equal(t, "Hello there.\n\nGeneral Kenobi.", StripVTT(sampleVTT))
}

func TestStripVTTWithoutSeparator(t *testing.T) {
	in := "WEBVTT\n\n00:00:01.000 --> 00:00:02.000\nOnly line\n"
	assert.Equal(t, "Only line", StripVTT(in))
}

func TestStripVTTByteOrderMark(t *testing.T) {
	in := "\uFEFFWEBVTT\n\n00:00:01.000 --> 00:00:02.000\nCaption after BOM\n"
	assert.Equal(t, "Caption after BOM", StripVTT(in))
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		declared string
		key      string
		want     models.ContentType
		ok       bool
	}{
		{"text/plain; charset=utf-8", "a.txt", models.ContentText, true},
		{"text/html", "a.html", models.ContentHTML, true},
		{"application/json", "a.json", models.ContentJSON, true},
		{"application/octet-stream", "notes/README.md", models.ContentMarkdown, true},
		{"application/octet-stream", "notes/guide.MARKDOWN", models.ContentMarkdown, true},
		{"text/plain", "call.vtt", models.ContentVTT, true},
		{"text/vtt", "call", models.ContentVTT, true},
		{"", "paper.pdf", models.ContentPDF, true},
		{string(models.ContentDOCX), "doc.docx", models.ContentDOCX, true},
		{"image/png", "photo.png", "", false},
		{"application/octet-stream", "archive.tar", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.declared+" "+tt.key, func(t *testing.T) {
			got, ok := DetectContentType(tt.declared, tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadPathDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "creators/users/1/docs/a.txt", []byte("plain text"))
	writeFile(t, root, "creators/users/1/docs/b.html", []byte("<html><head><title>B</title></head><body><p>Hello &amp; bye</p></body></html>"))
	writeFile(t, root, "creators/users/1/docs/sub/c.vtt", []byte(sampleVTT))
	writeFile(t, root, "creators/users/1/docs/d.png", []byte{0x89, 'P', 'N', 'G'})
	writeFile(t, root, "creators/users/1/docs/e.json", []byte("{not json"))
	writeFile(t, root, "creators/users/1/docs2/f.txt", []byte("sibling dir"))

	l := New(blobstore.NewLocalStore(root))

	result, err := l.LoadPath(context.Background(), "creators", "users/1/docs", "users/1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Documents, 3)

	a, b, c := result.Documents[0], result.Documents[1], result.Documents[2]

	assert.Equal(t, "users/1/docs/a.txt", a.SourceKey)
	assert.Equal(t, "users/1", a.Namespace)
	assert.Equal(t, "plain text", a.Text)
	assert.Equal(t, "a.txt", a.Metadata.Filename)
	assert.Equal(t, "creators", a.Metadata.Bucket)

	assert.Equal(t, "users/1/docs/b.html", b.SourceKey)
	assert.Equal(t, "Hello & bye", b.Text)
	assert.Equal(t, "B", b.Metadata.Title)
	assert.Equal(t, models.ContentHTML, b.Metadata.ContentType)

	assert.Equal(t, "users/1/docs/sub/c.vtt", c.SourceKey)
	assert.Equal(t, "Hello there.\n\nGeneral Kenobi.", c.Text)
	assert.True(t, c.Metadata.Transcript)
}

func TestLoadPathSingleFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "creators/users/1/docs/a.txt", []byte("just me"))
	l := New(blobstore.NewLocalStore(root))

	result, err := l.LoadPath(context.Background(), "creators", "/users/1/docs/a.txt", "users/1")
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "users/1/docs/a.txt", result.Documents[0].SourceKey)
}

func TestLoadPathSingleUnsupportedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "creators/users/1/photo.png", []byte{0x89})
	l := New(blobstore.NewLocalStore(root))

	result, err := l.LoadPath(context.Background(), "creators", "users/1/photo.png", "users/1")
	require.NoError(t, err)
	assert.Empty(t, result.Documents)
	assert.Equal(t, 1, result.Skipped)
}

func TestLoadPathMissing(t *testing.T) {
	l := New(blobstore.NewLocalStore(t.TempDir()))

	_, err := l.LoadPath(context.Background(), "creators", "users/1/nothing", "users/1")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestLoadFilePDF(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "creators/users/1/paper.pdf", []byte("%PDF-1.4"))
	runner := &mockRunner{output: []byte("  Page one text\n")}
	l := New(blobstore.NewLocalStore(root), WithCommandRunner(runner))

	doc, err := l.LoadFile(context.Background(), "creators", "users/1/paper.pdf", "users/1")
	require.NoError(t, err)
	assert.Equal(t, "Page one text", doc.Text)
	assert.Equal(t, models.ContentPDF, doc.Metadata.ContentType)
	assert.Equal(t, "pdftotext", runner.name)
	assert.Equal(t, "-", runner.args[len(runner.args)-1])
}

func TestLoadFilePDFRunnerError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "creators/users/1/paper.pdf", []byte("%PDF-1.4"))
	l := New(blobstore.NewLocalStore(root), WithCommandRunner(&mockRunner{err: errors.New("crashed")}))

	_, err := l.LoadFile(context.Background(), "creators", "users/1/paper.pdf", "users/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func buildDocx(t *testing.T, paragraphs []string, title string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	var body bytes.Buffer
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write(body.Bytes())
	require.NoError(t, err)

	w, err = zw.Create("docProps/core.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>` + title + `</dc:title></cp:coreProperties>`))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestLoadFileDOCX(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "creators/users/1/report.docx", buildDocx(t, []string{"First paragraph", "Second paragraph"}, "Quarterly"))
	l := New(blobstore.NewLocalStore(root))

	doc, err := l.LoadFile(context.Background(), "creators", "users/1/report.docx", "users/1")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\nSecond paragraph", doc.Text)
	assert.Equal(t, "Quarterly", doc.Metadata.Title)
	assert.Equal(t, models.ContentDOCX, doc.Metadata.ContentType)
}

func TestJSONText(t *testing.T) {
	text, err := jsonText([]byte(`{"b": ["two", {"c": "three"}], "a": "one", "n": 4}`))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree", text)
}
