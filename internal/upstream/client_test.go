package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedReturnsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	vec, err := c.Embed(context.Background(), "hello", "nomic-embed-text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedSurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Embed(context.Background(), "hello", "nomic-embed-text")
	require.Error(t, err)
}

func TestChatStreamsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		flusher := w.(http.Flusher)
		lines := []chatResponseLine{
			{Message: struct {
				Content string `json:"content"`
			}{Content: "Hel"}},
			{Message: struct {
				Content string `json:"content"`
			}{Content: "lo"}},
			{Done: true},
		}
		for _, l := range lines {
			data, _ := json.Marshal(l)
			_, _ = w.Write(append(data, '\n'))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	events, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, "llama3.1:8b")
	require.NoError(t, err)

	var content string
	var done bool
	for ev := range events {
		require.NoError(t, ev.Err)
		content += ev.Content
		if ev.Done {
			done = true
		}
	}
	assert.True(t, done)
	assert.Equal(t, "Hello", content)
}

func TestHasModelMatchesBaseName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(modelListResponse{Models: []ModelInfo{{Name: "llama3.1:8b"}}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	has, err := c.HasModel(context.Background(), "llama3.1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = c.HasModel(context.Background(), "mistral")
	require.NoError(t, err)
	assert.False(t, has)
}
