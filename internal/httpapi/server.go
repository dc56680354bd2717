package httpapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nhlutterodt/localrag/internal/collection"
	"github.com/nhlutterodt/localrag/internal/config"
	"github.com/nhlutterodt/localrag/internal/query"
	"github.com/nhlutterodt/localrag/internal/queue"
	"github.com/nhlutterodt/localrag/internal/querylog"
	"github.com/nhlutterodt/localrag/internal/upstream"
)

const (
	healthCacheTTL  = 15 * time.Second
	metricsCacheTTL = 5 * time.Second
)

// Server wires every spec.md §6 endpoint to the collaborators it needs.
type Server struct {
	router http.Handler

	cfg       *config.Config
	registry  *collection.Registry
	queue     *queue.Queue
	pipeline  *query.Pipeline
	upstream  *upstream.Client
	querylog  *querylog.Logger
	logger    *slog.Logger

	healthCache *ttlCache

	metricsMu    sync.Mutex
	metricsCache map[string]*ttlCache
}

// New constructs the router and returns a Server implementing http.Handler.
func New(cfg *config.Config, registry *collection.Registry, q *queue.Queue, pipeline *query.Pipeline, upstreamClient *upstream.Client, ql *querylog.Logger, logger *slog.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		registry:     registry,
		queue:        q,
		pipeline:     pipeline,
		upstream:     upstreamClient,
		querylog:     ql,
		logger:       logger,
		healthCache:  newTTLCache(healthCacheTTL),
		metricsCache: make(map[string]*ttlCache),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/models", s.handleModels)
	r.Get("/api/browse", s.handleBrowse)
	r.Post("/api/queue", s.handlePostQueue)
	r.Get("/api/queue", s.handleListQueue)
	r.Get("/api/queue/stream", s.handleQueueStream)
	r.Delete("/api/queue/{id}", s.handleCancelQueue)
	r.Get("/api/index/metrics", s.handleMetrics)
	r.Post("/api/chat", s.handleChat)
	r.Post("/api/log", s.handlePostLog)

	s.router = r
	return s
}

// ServeHTTP exposes the router so Server satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) metricsCacheFor(name string) *ttlCache {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	c, ok := s.metricsCache[name]
	if !ok {
		c = newTTLCache(metricsCacheTTL)
		s.metricsCache[name] = c
	}
	return c
}
