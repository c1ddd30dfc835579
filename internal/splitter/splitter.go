// Package splitter cuts documents into overlapping chunks ready for embedding.
package splitter

import (
	"strings"
	"unicode/utf8"

	"content-server/internal/models"
)

const (
	DefaultChunkSize    = 4000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter is a recursive character splitter. Sizes are measured in runes.
type Splitter struct {
	chunkSize  int
	overlap    int
	separators []string
}

type Option func(*Splitter)

func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize:  DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Ensure overlap doesn't exceed chunk size
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// SplitText returns chunks of at most chunkSize runes, except where a single
// unbreakable span is longer. Adjacent chunks share up to overlap runes.
func (s *Splitter) SplitText(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitOn(text, separator) {
		if runeLen(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good, separator)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good, separator)...)
	}
	return final
}

// merge greedily packs small pieces into chunks, carrying the tail of each
// chunk (up to overlap runes) into the next one.
func (s *Splitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)

	var (
		chunks  []string
		current []string
		total   int
	)
	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, piece := range pieces {
		n := runeLen(piece)
		if joinedLen(n) > s.chunkSize && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.overlap || (joinedLen(n) > s.chunkSize && total > 0) {
				total -= runeLen(current[0])
				if len(current) > 1 {
					total -= sepLen
				}
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, piece)
		total += n
	}

	if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func splitOn(text, separator string) []string {
	var pieces []string
	if separator == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}
	for _, p := range strings.Split(text, separator) {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Banner is the text prefixed to every chunk of a document.
func Banner(md models.DocumentMetadata) string {
	var b strings.Builder
	if md.Header != "" {
		b.WriteString(md.Header)
		b.WriteString("\n\n")
	}
	if md.Filename != "" {
		b.WriteString("File: ")
		b.WriteString(md.Filename)
		b.WriteString("\n\n")
	}
	if md.Transcript {
		b.WriteString("*Transcript*\n\n")
	}
	return b.String()
}

// SplitDocument chunks doc and applies its banner to each chunk.
func (s *Splitter) SplitDocument(doc models.Document) []models.Chunk {
	return toChunks(doc, s.SplitText(doc.Text))
}

// WholeDocument indexes doc as a single chunk; used for short texts such as chat summaries.
func WholeDocument(doc models.Document) []models.Chunk {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil
	}
	return toChunks(doc, []string{text})
}

func toChunks(doc models.Document, texts []string) []models.Chunk {
	banner := Banner(doc.Metadata)
	chunks := make([]models.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, models.Chunk{
			ID:        models.NewChunkID(doc.SourceKey),
			SourceKey: doc.SourceKey,
			Index:     i,
			Text:      banner + text,
			Metadata:  doc.Metadata,
		})
	}
	return chunks
}
