package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"content-server/internal/metric"
	"content-server/internal/middleware"
	"content-server/internal/models"
	"content-server/internal/splitter"
)

// UpsertBatchSize is the number of vectors sent per upsert call.
const UpsertBatchSize = 100

/*
LEARNING: DELETE-THEN-INSERT

A source key (file path, note-{type}-{id}, chat-{id}) is re-indexed by
deleting every vector whose id starts with "{sourceKey}#" and then inserting
the new chunks under fresh random suffixes. Nothing is updated in place, so
one generation of vectors survives per source key.
*/

// IndexerService implements the job handlers of the indexer worker.
type IndexerService struct {
	loader    DocumentLoader
	store     VectorStore
	embedder  Embedder
	deleter   *Deleter
	splitter  *splitter.Splitter
	metrics   *metric.Client
	location  *time.Location
	batchSize int
}

// NewIndexerService wires the handlers. location is used for chat headings;
// batchSize bounds the texts sent per embeddings request.
func NewIndexerService(
	loader DocumentLoader,
	store VectorStore,
	embedder Embedder,
	deleter *Deleter,
	metrics *metric.Client,
	location *time.Location,
	batchSize int,
) *IndexerService {
	if location == nil {
		location = time.UTC
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &IndexerService{
		loader:    loader,
		store:     store,
		embedder:  embedder,
		deleter:   deleter,
		splitter:  splitter.New(),
		metrics:   metrics,
		location:  location,
		batchSize: batchSize,
	}
}

// IndexDocuments replaces the vectors of each document in turn. When split
// is false every document becomes exactly one chunk. The first failure
// aborts the remaining documents.
func (s *IndexerService) IndexDocuments(ctx context.Context, docs []models.Document, split bool) (*models.JobResult, error) {
	ctx, span := middleware.StartSpan(ctx, "Indexer.IndexDocuments",
		attribute.Int("documents", len(docs)),
		attribute.Bool("split", split),
	)
	defer span.End()

	result := &models.JobResult{}
	for _, doc := range docs {
		deleted, upserted, err := s.indexDocument(ctx, doc, split)
		result.Deleted += deleted
		result.Upserted += upserted
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return result, fmt.Errorf("failed to index %s: %w", doc.SourceKey, err)
		}
		result.Documents++
	}
	return result, nil
}

func (s *IndexerService) indexDocument(ctx context.Context, doc models.Document, split bool) (deleted, upserted int, err error) {
	if doc.Namespace == "" {
		return 0, 0, fmt.Errorf("document %s has no namespace", doc.SourceKey)
	}

	deleted, err = s.deleter.DeleteByPrefix(ctx, doc.Namespace, models.SourcePrefix(doc.SourceKey))
	if err != nil {
		return deleted, 0, fmt.Errorf("failed to delete previous vectors: %w", err)
	}

	var chunks []models.Chunk
	if split {
		chunks = s.splitter.SplitDocument(doc)
	} else {
		chunks = splitter.WholeDocument(doc)
	}

	for start := 0; start < len(chunks); start += UpsertBatchSize {
		end := min(start+UpsertBatchSize, len(chunks))

		records, err := s.embed(ctx, chunks[start:end])
		if err != nil {
			return deleted, upserted, err
		}
		if err := s.store.Upsert(ctx, doc.Namespace, records); err != nil {
			return deleted, upserted, fmt.Errorf("failed to upsert chunks %d-%d: %w", start, end-1, err)
		}
		upserted += len(records)
		s.metrics.Count(metric.VectorsUpserted, int64(len(records)), nil)
	}

	log.Info().Ctx(ctx).
		Str("source_key", doc.SourceKey).
		Str("namespace", doc.Namespace).
		Int("deleted", deleted).
		Int("chunks", len(chunks)).
		Msg("Indexed document")

	return deleted, upserted, nil
}

// embed computes vectors for chunks in embedding batches.
func (s *IndexerService) embed(ctx context.Context, chunks []models.Chunk) ([]models.VectorRecord, error) {
	records := make([]models.VectorRecord, 0, len(chunks))
	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		vectors, err := s.embedder.CreateEmbeddings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
		}

		for i, c := range chunks[start:end] {
			records = append(records, models.VectorRecord{
				ID:       c.ID,
				Values:   vectors[i],
				Metadata: models.RecordMetadata(c),
			})
		}
	}
	return records, nil
}
