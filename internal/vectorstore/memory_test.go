package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-server/internal/models"
)

func records(ids ...string) []models.VectorRecord {
	out := make([]models.VectorRecord, len(ids))
	for i, id := range ids {
		out[i] = models.VectorRecord{ID: id, Values: []float32{1, 0}}
	}
	return out
}

func TestMemoryStoreListByPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Upsert(ctx, "users/1", records("note-text-4#a", "note-text-42#b", "note-text-4#c")))
	require.NoError(t, m.Upsert(ctx, "users/1/private", records("note-text-4#d")))

	ids, err := m.ListIDs(ctx, "users/1", "note-text-4#", 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"note-text-4#a", "note-text-4#c"}, ids)

	ids, err = m.ListIDs(ctx, "users/2", "note-text-4#", 100)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryStoreListClampsLimit(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for i := 0; i < 150; i++ {
		require.NoError(t, m.Upsert(ctx, "ns", records(fmt.Sprintf("k#%03d", i))))
	}

	ids, err := m.ListIDs(ctx, "ns", "k#", 0)
	require.NoError(t, err)
	assert.Len(t, ids, MaxPageSize)

	ids, err = m.ListIDs(ctx, "ns", "k#", 10)
	require.NoError(t, err)
	assert.Len(t, ids, 10)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Upsert(ctx, "ns", records("a#1", "a#2")))

	require.NoError(t, m.DeleteIDs(ctx, "ns", []string{"a#1"}))
	assert.Len(t, m.Records("ns"), 1)

	require.NoError(t, m.DeleteIDs(ctx, "ns", []string{"a#2"}))
	assert.Empty(t, m.Records("ns"))

	err := m.DeleteIDs(ctx, "ns", []string{"a#2"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreNamespaces(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Upsert(ctx, "users/2", records("x#1")))
	require.NoError(t, m.Upsert(ctx, "users/1", records("x#1")))

	names, err := m.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"users/1", "users/2"}, names)

	require.NoError(t, m.DeleteNamespace(ctx, "users/1"))
	assert.ErrorIs(t, m.DeleteNamespace(ctx, "users/1"), ErrNotFound)
}

func TestMemoryStoreRejectsEmptyID(t *testing.T) {
	m := NewMemoryStore()
	assert.Error(t, m.Upsert(context.Background(), "ns", records("")))
}
