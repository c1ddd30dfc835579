package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"content-server/internal/models"
)

var tableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// vectorRow is one chunk embedding. (namespace, id) is the primary key so
// the same chunk id may exist in a public and a private namespace.
type vectorRow struct {
	Namespace string          `gorm:"primaryKey"`
	ID        string          `gorm:"primaryKey"`
	Embedding pgvector.Vector `gorm:"type:vector"`
	Metadata  string          `gorm:"type:jsonb"`
	CreatedAt time.Time
}

// PgvectorStore keeps vectors in a Postgres table using the pgvector extension.
type PgvectorStore struct {
	db    *gorm.DB
	table string
}

// NewPgvectorStore creates the table and its HNSW index when missing.
// The pgvector extension must already be enabled (db.NewGorm does that).
func NewPgvectorStore(ctx context.Context, db *gorm.DB, table string, dimensions int) (*PgvectorStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid vector table name %q", table)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions %d", dimensions)
	}

	err := db.WithContext(ctx).Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			namespace  text        NOT NULL,
			id         text        NOT NULL,
			embedding  vector(%d)  NOT NULL,
			metadata   jsonb,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, id)
		)`, table, dimensions)).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create vector table: %w", err)
	}

	// Note: GORM doesn't have built-in vector index support
	err = db.WithContext(ctx).Exec(fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding
		ON %s USING hnsw (embedding vector_cosine_ops)`, table, table)).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	log.Info().Str("table", table).Int("dimensions", dimensions).Msg("✓ pgvector table ready")
	return &PgvectorStore{db: db, table: table}, nil
}

func (s *PgvectorStore) Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]vectorRow, len(records))
	for i, r := range records {
		md, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata of %s: %w", r.ID, err)
		}
		rows[i] = vectorRow{
			Namespace: namespace,
			ID:        r.ID,
			Embedding: pgvector.NewVector(r.Values),
			Metadata:  string(md),
		}
	}

	err := s.db.WithContext(ctx).Table(s.table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding", "metadata"}),
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

func (s *PgvectorStore) ListIDs(ctx context.Context, namespace, prefix string, limit int) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Table(s.table).
		Where("namespace = ? AND id LIKE ?", namespace, escapeLike(prefix)+"%").
		Order("id").
		Limit(clampLimit(limit)).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list vectors: %w", err)
	}
	return ids, nil
}

func (s *PgvectorStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).Table(s.table).
		Where("namespace = ? AND id IN ?", namespace, ids).
		Delete(&vectorRow{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete vectors: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgvectorStore) ListNamespaces(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Table(s.table).
		Distinct("namespace").
		Order("namespace").
		Pluck("namespace", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	return names, nil
}

func (s *PgvectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	result := s.db.WithContext(ctx).Table(s.table).
		Where("namespace = ?", namespace).
		Delete(&vectorRow{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// escapeLike quotes LIKE wildcards so prefixes match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
