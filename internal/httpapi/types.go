// Package httpapi wires the chi router described by spec.md §6: every
// endpoint in the external-interface table, JSON problem-details for
// non-2xx responses on JSON endpoints, and flush-after-every-event SSE
// streams with a disconnect-detector for /api/chat and /api/queue/stream.
// Grounded on the teacher's internal/server/server.go (chi + cors +
// middleware wiring, {id} URL params, writeJSON/writeError helpers) and
// entrepeneur4lyf-codeforge/internal/api/sse_handlers.go for the
// flush-per-event SSE write loop.
package httpapi

import "time"

// problemDetails is the JSON error body spec.md §6 requires for non-2xx
// responses on JSON endpoints.
type problemDetails struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// modelStatus is one row of GET /api/models.
type modelStatus struct {
	Name      string    `json:"name"`
	Installed bool      `json:"installed"`
	Size      int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt,omitempty"`
}

// modelsResponse is the full GET /api/models body.
type modelsResponse struct {
	Models       []modelStatus `json:"models"`
	EmbedReady   bool          `json:"embedReady"`
	ChatReady    bool          `json:"chatReady"`
	Ready        bool          `json:"ready"`
}

// healthResponse is the GET /api/health body.
type healthResponse struct {
	Status       string `json:"status"`
	UpstreamOK   bool   `json:"upstreamOk"`
	OllamaURL    string `json:"ollamaUrl"`
}

// queueRequest is the POST /api/queue body.
type queueRequest struct {
	Path       string `json:"path"`
	Collection string `json:"collection"`
}

// chatRequestBody is the POST /api/chat body.
type chatRequestBody struct {
	Messages   []chatMessage `json:"messages"`
	Model      string        `json:"model"`
	Collection string        `json:"collection"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// metricsResponse is one collection's GET /api/index/metrics row.
type metricsResponse struct {
	VectorCount    int       `json:"vectorCount"`
	Dimension      int       `json:"dimension"`
	EmbeddingModel string    `json:"embeddingModel"`
	TotalSizeBytes int64     `json:"totalSizeBytes"`
	Health         string    `json:"health"`
	LastIngestedAt time.Time `json:"lastIngestedAt,omitempty"`
}

// logRequest is the POST /api/log body: an arbitrary UI pass-through entry.
type logRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// browseResponse is the GET /api/browse body.
type browseResponse struct {
	Path string `json:"path"`
}
