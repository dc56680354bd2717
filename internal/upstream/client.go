package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nhlutterodt/localrag/internal/apperr"
)

// Client is the upstream model runtime collaborator: EmbeddingClient and
// the chat client share one connection-pooled *http.Client and one base
// URL, since both talk to the same Ollama instance.
//
// Embed calls are serialized by embedMu (spec.md §4.5): the upstream
// can't service concurrent embed/chat calls across a model swap without
// thrashing, so at most one Embed call executes at a time regardless of
// how many query or ingestion goroutines call it concurrently. Chat calls
// are not serialized by this mutex — a single in-flight chat stream plus
// concurrent background embeds (ingestion) is the expected steady state.
type Client struct {
	baseURL string
	http    *http.Client

	embedMu sync.Mutex
}

// New constructs a Client against baseURL (e.g. http://localhost:11434),
// grounded on the teacher's pooled-transport construction but with no
// client-level static timeout — callers scope timeouts via context, per
// spec.md §5's per-request cancellation model.
func New(baseURL string) *Client {
	transport := &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     30 * time.Second,
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport},
	}
}

// ListModels returns every model installed on the upstream runtime.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, apperr.Internal("failed to build /api/tags request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.UpstreamUnavailable("failed to reach upstream model runtime", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperr.UpstreamError(fmt.Sprintf("upstream /api/tags returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	var parsed modelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.UpstreamError("failed to decode /api/tags response", err)
	}
	return parsed.Models, nil
}

// HasModel reports whether model (or its base name before ':') is present
// in the upstream's installed model list.
func (c *Client) HasModel(ctx context.Context, model string) (bool, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false, err
	}
	want := strings.ToLower(model)
	wantBase := strings.Split(want, ":")[0]
	for _, m := range models {
		name := strings.ToLower(m.Name)
		if name == want || strings.Split(name, ":")[0] == wantBase {
			return true, nil
		}
	}
	return false, nil
}

// Healthy reports whether the upstream runtime is reachable at all,
// independent of which models it has installed.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.ListModels(ctx)
	return err == nil
}

// PullCommand formats the `ollama pull <model>` suggestion for a missing
// embedding or chat model. No error path in this module attaches it to a
// NotReady error.
func PullCommand(model string) string {
	return fmt.Sprintf("ollama pull %s", model)
}
