package vectorstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"content-server/internal/config"
	"content-server/internal/db"
)

// Backend is what every concrete store provides.
type Backend interface {
	Store
	NamespaceAdmin
}

// Open builds the backend selected by VECTOR_BACKEND. The returned close
// function releases its connections.
func Open(ctx context.Context, cfg *config.Config) (Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.VectorBackend {
	case "pinecone":
		store, err := NewPineconeStore(ctx, PineconeConfig{
			APIKey:      cfg.PineconeAPIKey,
			IndexName:   cfg.VectorIndex,
			IndexHost:   cfg.PineconeIndexHost,
			Environment: cfg.PineconeEnv,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case "pgvector":
		database, err := db.NewGorm(cfg.DatabaseURL, cfg.LogLevel == "DEBUG")
		if err != nil {
			return nil, nil, err
		}
		store, err := NewPgvectorStore(ctx, database.DB, cfg.VectorIndex, cfg.EmbeddingDimensions)
		if err != nil {
			database.Close()
			return nil, nil, err
		}
		return store, database.Close, nil

	case "qdrant":
		store, err := NewQdrantStore(ctx, QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.VectorIndex,
			Dimensions: cfg.EmbeddingDimensions,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	case "memory":
		log.Warn().Msg("Using in-memory vector store, vectors are lost on exit")
		return NewMemoryStore(), noop, nil
	}
	return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
}
