// Package collection is the composition glue spec.md §3 describes: each
// Collection owns exactly one VectorStore and one SourceManifest, created
// on first successful ingestion and destroyed only by explicit admin
// action (never through the HTTP surface). The Registry is the single
// place both the ingestion worker and the query path obtain a Collection,
// so they share one *vectorstore.Store instance and its RWMutex rather
// than two independent readers racing an on-disk file (spec.md §9's
// "two separate store readers -> one shared implementation").
package collection

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/nhlutterodt/localrag/internal/apperr"
	"github.com/nhlutterodt/localrag/internal/manifest"
	"github.com/nhlutterodt/localrag/internal/vectorstore"
)

// NamePattern is the collection-name validation regex from spec.md §3/§6.
var NamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName rejects anything that isn't a safe, non-empty collection
// identifier.
func ValidateName(name string) error {
	if name == "" || !NamePattern.MatchString(name) {
		return apperr.InputValidation(fmt.Sprintf("invalid collection name %q", name), nil)
	}
	return nil
}

// Collection bundles the vector table and manifest for one named corpus.
// Names are matched exactly: "Docs" and "docs" are two separate
// collections with two separate directories.
type Collection struct {
	Name     string
	Dir      string
	Store    *vectorstore.Store
	Manifest *manifest.Manifest
}

// Registry owns every Collection rooted under dataDir. Safe for concurrent
// use: Get/GetOrCreate/Destroy take the registry lock only to look up,
// insert or evict a *Collection; all per-collection concurrency is then delegated
// to the Store's own RWMutex and the Manifest's single-writer discipline.
type Registry struct {
	dataDir string
	logger  *slog.Logger

	mu          sync.RWMutex
	collections map[string]*Collection
}

// New returns a registry rooted at dataDir. Collections are discovered
// lazily: nothing is read from disk until Get or GetOrCreate is called.
func New(dataDir string, logger *slog.Logger) *Registry {
	return &Registry{
		dataDir:     dataDir,
		logger:      logger,
		collections: make(map[string]*Collection),
	}
}

func (r *Registry) dirFor(name string) string {
	return filepath.Join(r.dataDir, name)
}

// Get returns the collection for name, loading it from disk on first
// access. Returns a NotReady AppError if the collection has never been
// ingested (no vectors/manifest files on disk).
func (r *Registry) Get(name string, expectedModel string) (*Collection, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.RLock()
	c, ok := r.collections[name]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	dir := r.dirFor(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, apperr.NotReady(fmt.Sprintf("collection %q has no ingested documents yet", name), nil)
	}

	return r.load(name, dir, expectedModel)
}

// GetOrCreate returns the collection for name, creating an empty one on
// disk if it doesn't exist yet — the "created on first successful
// ingestion" lifecycle spec.md §3 describes. Used only by the ingestion
// path.
func (r *Registry) GetOrCreate(name string, expectedModel string) (*Collection, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	r.mu.RLock()
	c, ok := r.collections[name]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	dir := r.dirFor(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Internal("failed to create collection directory", err)
	}
	return r.load(name, dir, expectedModel)
}

func (r *Registry) load(name, dir, expectedModel string) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.collections[name]; ok {
		return c, nil
	}

	store := vectorstore.New(dir, name)
	warning, err := store.Load(expectedModel)
	if err != nil {
		if apperr.GetCategory(err) == apperr.CategoryStoreCorrupt {
			store.MarkCorrupt()
			r.logger.Error("vector store is corrupt", "collection", name, "error", err)
		} else {
			return nil, err
		}
	}
	if warning != "" {
		r.logger.Warn("vector store loaded with warning", "collection", name, "warning", warning)
	}

	mf := manifest.New(dir, name)
	if err := mf.Load(); err != nil {
		return nil, err
	}

	c := &Collection{Name: name, Dir: dir, Store: store, Manifest: mf}
	r.collections[name] = c
	return c, nil
}

// List returns every collection directory name found under the data
// directory, sorted; the in-memory cache is not consulted.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Internal("failed to list data directory", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if !NamePattern.MatchString(e.Name()) {
			continue
		}
		if !seen[e.Name()] {
			seen[e.Name()] = true
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Destroy permanently deletes a collection's on-disk files and evicts it
// from the in-memory cache. This is the explicit admin action spec.md §3
// reserves off the HTTP surface (wired only to the CLI).
func (r *Registry) Destroy(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.collections, name)
	r.mu.Unlock()

	dir := r.dirFor(name)
	if err := os.RemoveAll(dir); err != nil {
		return apperr.Internal("failed to remove collection directory", err)
	}
	return nil
}

// Metrics is the per-collection summary returned by /api/index/metrics,
// extended with the supplemented LastIngestedAt staleness field.
type Metrics struct {
	vectorstore.Stats
	LastIngestedAt time.Time
}

// MetricsFor returns the current metrics for a collection without
// requiring it to already be loaded.
func (r *Registry) MetricsFor(name string) (Metrics, error) {
	c, err := r.Get(name, "")
	if err != nil {
		return Metrics{}, err
	}
	stats := c.Store.Stats()

	var last time.Time
	for _, e := range c.Manifest.All() {
		if e.LastIngested.After(last) {
			last = e.LastIngested
		}
	}
	return Metrics{Stats: stats, LastIngestedAt: last}, nil
}
