package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"

	"content-server/internal/models"
)

// Payload fields written next to every point.
const (
	qdrantNamespaceKey = "namespace"
	qdrantChunkIDKey   = "chunk_id"
	qdrantPrefixesKey  = "key_prefixes"
)

var qdrantIDSpace = uuid.MustParse("0b7e3c55-7a43-4f0e-9a55-52b1f3d0c8a1")

// QdrantStore keeps all namespaces in one collection, filtered by payload.
// Qdrant point ids must be UUIDs, so chunk ids travel in the payload and the
// point id is derived from (namespace, chunk id).
//
// Qdrant has no prefix match on strings. Each point carries every prefix it
// can be deleted by in key_prefixes: the source prefix ("key#"), the source
// key itself and each parent directory with and without a trailing slash.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	Collection string
	Dimensions int
}

func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.APIKey != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{client: client, collection: cfg.Collection}
	if err := s.ensureCollection(ctx, uint64(cfg.Dimensions)); err != nil {
		client.Close()
		return nil, err
	}

	log.Info().Str("host", cfg.Host).Str("collection", cfg.Collection).Msg("✓ Qdrant client initialized")
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dimensions uint64) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}

	for _, field := range []string{qdrantNamespaceKey, qdrantPrefixesKey} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", field, err)
		}
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		payload := make(map[string]any, len(r.Metadata)+3)
		for k, v := range r.Metadata {
			payload[k] = v
		}
		prefixes := keyPrefixes(r.ID)
		anyPrefixes := make([]any, len(prefixes))
		for i, p := range prefixes {
			anyPrefixes[i] = p
		}
		payload[qdrantNamespaceKey] = namespace
		payload[qdrantChunkIDKey] = r.ID
		payload[qdrantPrefixesKey] = anyPrefixes

		values, err := qdrant.TryValueMap(payload)
		if err != nil {
			return fmt.Errorf("failed to convert payload of %s: %w", r.ID, err)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      pointID(namespace, r.ID),
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: r.Values}}},
			Payload: values,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

func (s *QdrantStore) ListIDs(ctx context.Context, namespace, prefix string, limit int) ([]string, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				keywordCondition(qdrantNamespaceKey, namespace),
				keywordCondition(qdrantPrefixesKey, prefix),
			},
		},
		Limit:       qdrant.PtrOf(uint32(clampLimit(limit))),
		WithPayload: qdrant.NewWithPayloadInclude(qdrantChunkIDKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll points: %w", err)
	}

	ids := make([]string, 0, len(points))
	for _, p := range points {
		if id := p.GetPayload()[qdrantChunkIDKey].GetStringValue(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *QdrantStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(namespace, id)
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

// ListNamespaces uses a facet over the namespace keyword index.
func (s *QdrantStore) ListNamespaces(ctx context.Context) ([]string, error) {
	hits, err := s.client.Facet(ctx, &qdrant.FacetCounts{
		CollectionName: s.collection,
		Key:            qdrantNamespaceKey,
		Limit:          qdrant.PtrOf(uint64(10000)),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to facet namespaces: %w", err)
	}

	names := make([]string, 0, len(hits))
	for _, h := range hits {
		if v := h.GetValue().GetStringValue(); v != "" {
			names = append(names, v)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *QdrantStore) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{keywordCondition(qdrantNamespaceKey, namespace)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func pointID(namespace, chunkID string) *qdrant.PointId {
	id := uuid.NewSHA1(qdrantIDSpace, []byte(namespace+"\x00"+chunkID))
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id.String()}}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   key,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

// keyPrefixes lists the prefixes a chunk id can be matched by.
func keyPrefixes(chunkID string) []string {
	sourceKey := chunkID
	if i := strings.LastIndex(chunkID, models.ChunkSeparator); i >= 0 {
		sourceKey = chunkID[:i]
	}

	prefixes := []string{models.SourcePrefix(sourceKey), sourceKey}
	dir := sourceKey
	for {
		i := strings.LastIndex(dir, "/")
		if i <= 0 {
			break
		}
		dir = dir[:i]
		prefixes = append(prefixes, dir+"/", dir)
	}
	return prefixes
}
