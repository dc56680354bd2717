package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhlutterodt/localrag/internal/collection"
	"github.com/nhlutterodt/localrag/internal/config"
	"github.com/nhlutterodt/localrag/internal/query"
	"github.com/nhlutterodt/localrag/internal/queue"
	"github.com/nhlutterodt/localrag/internal/querylog"
	"github.com/nhlutterodt/localrag/internal/upstream"
)

type fakeProcessor struct{}

func (fakeProcessor) Process(ctx context.Context, job *queue.Job, report func(string)) error {
	return nil
}

func newTestServer(t *testing.T, ollamaURL string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	dataDir := t.TempDir()
	cfg := config.Default()
	cfg.OllamaURL = ollamaURL

	registry := collection.New(dataDir, logger)

	q, err := queue.New(dataDir, fakeProcessor{}, logger)
	require.NoError(t, err)
	require.NoError(t, q.Load())

	ql, err := querylog.New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ql.Flush() })

	upstreamClient := upstream.New(cfg.OllamaURL)
	pipeline := query.New(registry, upstreamClient, upstreamClient, ql, cfg, logger)

	return New(cfg, registry, q, pipeline, upstreamClient, ql, logger)
}

func TestHandleHealthCaches(t *testing.T) {
	calls := 0
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer upstreamSrv.Close()

	s := newTestServer(t, upstreamSrv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)

	assert.Equal(t, 1, calls, "second request within TTL must not re-hit upstream")
}

func TestHandlePostQueueRejectsBadPath(t *testing.T) {
	s := newTestServer(t, "http://localhost:0")

	body, _ := json.Marshal(queueRequest{Path: "relative/path", Collection: "docs"})
	req := httptest.NewRequest(http.MethodPost, "/api/queue", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePostQueueRejectsBadCollectionName(t *testing.T) {
	s := newTestServer(t, "http://localhost:0")

	body, _ := json.Marshal(queueRequest{Path: "/tmp/docs", Collection: "bad name!"})
	req := httptest.NewRequest(http.MethodPost, "/api/queue", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCancelQueueUnknownJobReturns400(t *testing.T) {
	s := newTestServer(t, "http://localhost:0")

	req := httptest.NewRequest(http.MethodDelete, "/api/queue/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateQueuePathDenyList(t *testing.T) {
	assert.Error(t, validateQueuePath("/etc/passwd"))
	assert.Error(t, validateQueuePath(`C:\Windows\System32`))
	assert.Error(t, validateQueuePath("not/absolute"))
	assert.Error(t, validateQueuePath("/home/user/../etc"))
	assert.NoError(t, validateQueuePath("/home/user/docs"))
}
