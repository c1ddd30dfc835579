package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pinecone-io/go-pinecone/v2/pinecone"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"content-server/internal/models"
)

// pineconeIndex is the part of *pinecone.IndexConnection the store calls.
// A connection is bound to one namespace.
type pineconeIndex interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	ListVectors(ctx context.Context, in *pinecone.ListVectorsRequest) (*pinecone.ListVectorsResponse, error)
	DeleteVectorsById(ctx context.Context, ids []string) error
	DeleteAllVectorsInNamespace(ctx context.Context) error
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

type PineconeConfig struct {
	APIKey string
	// IndexName is resolved to its data-plane host when IndexHost is empty.
	IndexName string
	// IndexHost is the host shown in the Pinecone console
	// (e.g. creators-abc123.svc.us-east-1-aws.pinecone.io).
	IndexHost   string
	Environment string
	// ControllerHost overrides the control-plane URL.
	ControllerHost string
}

// PineconeStore keeps one data-plane connection per namespace it has used.
type PineconeStore struct {
	Host string

	dial  func(namespace string) (pineconeIndex, error)
	mu    sync.Mutex
	conns map[string]pineconeIndex
}

func NewPineconeStore(ctx context.Context, cfg PineconeConfig) (*PineconeStore, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
		Host:   cfg.ControllerHost,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	host := cfg.IndexHost
	if host == "" {
		if cfg.IndexName == "" {
			return nil, errors.New("pinecone index name or host is required")
		}
		idx, err := client.DescribeIndex(ctx, cfg.IndexName)
		if err != nil {
			return nil, fmt.Errorf("failed to describe pinecone index %s: %w", cfg.IndexName, err)
		}
		host = idx.Host
	}
	host = strings.TrimSuffix(host, "/")
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")

	store := newPineconeStore(host, func(namespace string) (pineconeIndex, error) {
		conn, err := client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
		if err != nil {
			return nil, err
		}
		return conn, nil
	})

	log.Info().Str("index", cfg.IndexName).Str("host", host).Str("environment", cfg.Environment).Msg("✓ Pinecone client initialized")
	return store, nil
}

func newPineconeStore(host string, dial func(namespace string) (pineconeIndex, error)) *PineconeStore {
	return &PineconeStore{
		Host:  host,
		dial:  dial,
		conns: make(map[string]pineconeIndex),
	}
}

func (p *PineconeStore) conn(namespace string) (pineconeIndex, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.conns[namespace]; ok {
		return c, nil
	}
	c, err := p.dial(namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pinecone namespace %q: %w", namespace, err)
	}
	p.conns[namespace] = c
	return c, nil
}

func (p *PineconeStore) Upsert(ctx context.Context, namespace string, records []models.VectorRecord) error {
	conn, err := p.conn(namespace)
	if err != nil {
		return err
	}

	vectors := make([]*pinecone.Vector, len(records))
	for i, r := range records {
		v := &pinecone.Vector{Id: r.ID, Values: r.Values}
		if len(r.Metadata) > 0 {
			md, err := structpb.NewStruct(r.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata of %s: %w", r.ID, err)
			}
			v.Metadata = md
		}
		vectors[i] = v
	}

	count, err := conn.UpsertVectors(ctx, vectors)
	if err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", pineconeErr(err))
	}
	if int(count) != len(records) {
		return fmt.Errorf("upserted %d of %d vectors", count, len(records))
	}
	return nil
}

func (p *PineconeStore) ListIDs(ctx context.Context, namespace, prefix string, limit int) ([]string, error) {
	conn, err := p.conn(namespace)
	if err != nil {
		return nil, err
	}

	n := uint32(clampLimit(limit))
	resp, err := conn.ListVectors(ctx, &pinecone.ListVectorsRequest{Prefix: &prefix, Limit: &n})
	if err != nil {
		return nil, fmt.Errorf("failed to list vectors: %w", pineconeErr(err))
	}

	ids := make([]string, 0, len(resp.VectorIds))
	for _, id := range resp.VectorIds {
		if id != nil {
			ids = append(ids, *id)
		}
	}
	return ids, nil
}

func (p *PineconeStore) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	conn, err := p.conn(namespace)
	if err != nil {
		return err
	}
	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", pineconeErr(err))
	}
	return nil
}

func (p *PineconeStore) ListNamespaces(ctx context.Context) ([]string, error) {
	conn, err := p.conn("")
	if err != nil {
		return nil, err
	}
	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe index: %w", pineconeErr(err))
	}

	names := make([]string, 0, len(stats.Namespaces))
	for name := range stats.Namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (p *PineconeStore) DeleteNamespace(ctx context.Context, namespace string) error {
	conn, err := p.conn(namespace)
	if err != nil {
		return err
	}
	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, pineconeErr(err))
	}
	return nil
}

// Close releases every namespace connection.
func (p *PineconeStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for ns, c := range p.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close pinecone namespace %q: %w", ns, err))
		}
		delete(p.conns, ns)
	}
	return errors.Join(errs...)
}

// pineconeErr maps a gRPC NotFound (missing namespace) onto ErrNotFound.
func pineconeErr(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, status.Convert(err).Message())
	}
	return err
}
