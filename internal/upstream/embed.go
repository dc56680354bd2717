package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nhlutterodt/localrag/internal/apperr"
)

// Embed generates the embedding vector for text using model, serialized
// process-wide by embedMu per spec.md §4.5. No retry: failures surface as
// UpstreamUnavailable (connection) or UpstreamError (non-2xx) and the
// caller — the ingestion worker or QueryPipeline — decides whether to try
// again.
func (c *Client) Embed(ctx context.Context, text, model string) ([]float32, error) {
	c.embedMu.Lock()
	defer c.embedMu.Unlock()

	body, err := json.Marshal(embedRequest{Model: model, Input: text})
	if err != nil {
		return nil, apperr.Internal("failed to marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Internal("failed to build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.UpstreamUnavailable("failed to reach upstream embedding model", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, apperr.UpstreamError(fmt.Sprintf("embedding request failed with status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperr.UpstreamError("failed to decode embed response", err)
	}
	if len(parsed.Embeddings) == 0 {
		return nil, apperr.UpstreamError("upstream returned no embedding", nil)
	}

	vec := make([]float32, len(parsed.Embeddings[0]))
	for i, v := range parsed.Embeddings[0] {
		vec[i] = float32(v)
	}
	return vec, nil
}
