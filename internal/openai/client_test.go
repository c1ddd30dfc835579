package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, model string, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("sk-test", model, 256)
	c.BaseURL = srv.URL
	return c
}

func TestCreateEmbeddingsOrdersByIndex(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req EmbeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultEmbeddingModel, req.Model)
		assert.Zero(t, req.Dimensions)
		assert.Equal(t, []string{"first", "second"}, req.Input)

		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}],"model":"text-embedding-ada-002"}`))
	})

	got, err := c.CreateEmbeddings(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 2}}, got)
}

func TestCreateEmbeddingsSendsDimensionsForV3(t *testing.T) {
	c := newTestClient(t, "text-embedding-3-small", func(w http.ResponseWriter, r *http.Request) {
		var req EmbeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 256, req.Dimensions)

		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	})

	got, err := c.CreateEmbeddings(context.Background(), []string{"only"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCreateEmbeddingsErrors(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})

	_, err := c.CreateEmbeddings(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCreateEmbeddingsCountMismatch(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	})

	_, err := c.CreateEmbeddings(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestCreateEmbeddingsEmptyInput(t *testing.T) {
	c := NewClient("sk-test", "", 0)
	got, err := c.CreateEmbeddings(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
