package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nhlutterodt/localrag/internal/collection"
	"github.com/nhlutterodt/localrag/internal/upstream"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.healthCache.get(); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	upstreamOK := s.upstream.Healthy(r.Context())
	status := "ok"
	if !upstreamOK {
		status = "degraded"
	}
	resp := healthResponse{Status: status, UpstreamOK: upstreamOK, OllamaURL: s.cfg.OllamaURL}
	s.healthCache.set(resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.upstream.ListModels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	rows := make([]modelStatus, 0, len(models))
	embedReady, chatReady := false, false
	for _, m := range models {
		rows = append(rows, modelStatus{Name: m.Name, Installed: true, Size: m.Size, ModifiedAt: m.ModifiedAt})
		if modelMatches(m.Name, s.cfg.EmbeddingModel) {
			embedReady = true
		}
		if modelMatches(m.Name, s.cfg.ChatModel) {
			chatReady = true
		}
	}

	writeJSON(w, http.StatusOK, modelsResponse{
		Models:     rows,
		EmbedReady: embedReady,
		ChatReady:  chatReady,
		Ready:      embedReady && chatReady,
	})
}

func modelMatches(installed, want string) bool {
	a := strings.ToLower(installed)
	b := strings.ToLower(want)
	return a == b || strings.Split(a, ":")[0] == strings.Split(b, ":")[0]
}

// handleBrowse stands in for the OS file-picker dialog spec.md §6 describes:
// no GUI toolkit is part of this service's dependency stack, so it returns
// the user's home directory as a sane starting point for a client-side picker.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	writeJSON(w, http.StatusOK, browseResponse{Path: home})
}

func (s *Server) handlePostQueue(w http.ResponseWriter, r *http.Request) {
	var body queueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, problemDetails{Type: "about:blank", Status: http.StatusBadRequest, Detail: "invalid JSON body"})
		return
	}

	if err := collection.ValidateName(body.Collection); err != nil {
		writeError(w, err)
		return
	}
	if err := validateQueuePath(body.Path); err != nil {
		writeError(w, err)
		return
	}

	job, err := s.queue.Enqueue(body.Path, body.Collection)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.List())
}

func (s *Server) handleCancelQueue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueueStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	jobs, unsubscribe := s.queue.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-jobs:
			if !ok {
				return
			}
			if err := writeSSEData(w, snapshot); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("collection")
	if name == "" {
		s.handleAllMetrics(w, r)
		return
	}

	cache := s.metricsCacheFor(name)
	if cached, ok := cache.get(); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	m, err := s.registry.MetricsFor(name)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := toMetricsResponse(m)
	cache.set(resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAllMetrics(w http.ResponseWriter, r *http.Request) {
	names, err := s.registry.List()
	if err != nil {
		writeError(w, err)
		return
	}

	out := make(map[string]metricsResponse, len(names))
	for _, name := range names {
		cache := s.metricsCacheFor(name)
		if cached, ok := cache.get(); ok {
			out[name] = cached.(metricsResponse)
			continue
		}
		m, err := s.registry.MetricsFor(name)
		if err != nil {
			continue
		}
		resp := toMetricsResponse(m)
		cache.set(resp)
		out[name] = resp
	}
	writeJSON(w, http.StatusOK, out)
}

func toMetricsResponse(m collection.Metrics) metricsResponse {
	return metricsResponse{
		VectorCount:    m.VectorCount,
		Dimension:      m.Dimension,
		EmbeddingModel: m.EmbeddingModel,
		TotalSizeBytes: m.TotalSizeBytes,
		Health:         string(m.Health),
		LastIngestedAt: m.LastIngestedAt,
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, problemDetails{Type: "about:blank", Status: http.StatusBadRequest, Detail: "invalid JSON body"})
		return
	}

	model := body.Model
	if model == "" {
		model = s.cfg.ChatModel
	}
	messages := make([]upstream.Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		messages = append(messages, upstream.Message{Role: m.Role, Content: m.Content})
	}

	events, err := s.pipeline.Run(r.Context(), messages, model, body.Collection)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if err := writeSSEData(w, ev); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handlePostLog(w http.ResponseWriter, r *http.Request) {
	var body logRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, problemDetails{Type: "about:blank", Status: http.StatusBadRequest, Detail: "invalid JSON body"})
		return
	}

	switch strings.ToLower(body.Level) {
	case "error":
		s.logger.Error("client log", "message", body.Message)
	case "warn", "warning":
		s.logger.Warn("client log", "message", body.Message)
	default:
		s.logger.Info("client log", "message", body.Message)
	}
	w.WriteHeader(http.StatusNoContent)
}
