package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"content-server/internal/models"
)

// MemoryStore keeps vectors in process. Used for local runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]models.VectorRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string]map[string]models.VectorRecord)}
}

func (m *MemoryStore) Upsert(_ context.Context, namespace string, records []models.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]models.VectorRecord)
		m.namespaces[namespace] = ns
	}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("vector record without id")
		}
		ns[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) ListIDs(_ context.Context, namespace, prefix string, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id := range m.namespaces[namespace] {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if limit = clampLimit(limit); len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *MemoryStore) DeleteIDs(_ context.Context, namespace string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		return fmt.Errorf("namespace %s: %w", namespace, ErrNotFound)
	}
	for _, id := range ids {
		delete(ns, id)
	}
	if len(ns) == 0 {
		delete(m.namespaces, namespace)
	}
	return nil
}

func (m *MemoryStore) ListNamespaces(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.namespaces))
	for name := range m.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) DeleteNamespace(_ context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.namespaces[namespace]; !ok {
		return fmt.Errorf("namespace %s: %w", namespace, ErrNotFound)
	}
	delete(m.namespaces, namespace)
	return nil
}

// Records returns a copy of every record in namespace.
func (m *MemoryStore) Records(namespace string) map[string]models.VectorRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]models.VectorRecord, len(m.namespaces[namespace]))
	for id, r := range m.namespaces[namespace] {
		out[id] = r
	}
	return out
}
