package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nhlutterodt/localrag/internal/apperr"
)

// hashIndexSize bounds the reverse hash->fileName index the same way the
// teacher bounds its gitignore-matcher cache (internal/scanner.New):
// unbounded growth across a long-running daemon's lifetime is the risk
// being guarded against, not per-collection correctness (an LRU miss just
// falls back to the linear scan in FindByHash).
const hashIndexSize = 4096

// Manifest is the single-writer, case-insensitive ledger of ingested files
// for one collection. Only the ingestion worker mutates it (spec.md §5).
type Manifest struct {
	mu sync.RWMutex

	path       string
	collection string

	entries map[string]Entry // lower-cased fileName -> Entry
	names   map[string]string // lower-cased fileName -> original-case fileName

	hashIndex *lru.Cache[string, string] // contentHash -> lower-cased fileName
}

// New returns an empty, unloaded manifest for collection rooted at dir
// (dir is the collection's own subdirectory).
func New(dir, collection string) *Manifest {
	cache, _ := lru.New[string, string](hashIndexSize)
	return &Manifest{
		path:       filepath.Join(dir, collection+".manifest.json"),
		collection: collection,
		entries:    make(map[string]Entry),
		names:      make(map[string]string),
		hashIndex:  cache,
	}
}

// Load reads the manifest file if present. A missing file is not an error:
// it means the collection has never been ingested.
func (m *Manifest) Load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperr.Internal("failed to read manifest file", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return apperr.StoreCorrupt("manifest file is not valid JSON", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry, len(doc.Entries))
	m.names = make(map[string]string, len(doc.Entries))
	for _, e := range doc.Entries {
		key := strings.ToLower(e.FileName)
		m.entries[key] = e
		m.names[key] = e.FileName
		m.hashIndex.Add(e.ContentHash, key)
	}
	return nil
}

// Save atomically rewrites the manifest file.
func (m *Manifest) Save() error {
	m.mu.RLock()
	entries := make([]Entry, 0, len(m.entries))
	for _, key := range sortedKeys(m.names) {
		entries = append(entries, m.entries[key])
	}
	m.mu.RUnlock()

	doc := document{
		Version:     manifestVersion,
		Collection:  m.collection,
		LastUpdated: time.Now(),
		Entries:     entries,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperr.Internal("failed to marshal manifest", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return apperr.Internal("failed to create collection directory", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Internal("failed to write manifest temp file", err)
	}
	if f, err := os.OpenFile(tmp, os.O_RDWR, 0o644); err == nil {
		_ = f.Sync()
		_ = f.Close()
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return apperr.Internal("failed to rename manifest temp file into place", err)
	}
	return nil
}

// Get returns the entry for fileName (case-insensitive) and whether it exists.
func (m *Manifest) Get(fileName string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[strings.ToLower(fileName)]
	return e, ok
}

// AddOrUpdate inserts or overwrites the entry keyed by entry.FileName.
func (m *Manifest) AddOrUpdate(entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(entry.FileName)
	m.entries[key] = entry
	m.names[key] = entry.FileName
	m.hashIndex.Add(entry.ContentHash, key)
}

// Remove deletes the entry for fileName, if present.
func (m *Manifest) Remove(fileName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(fileName)
	delete(m.entries, key)
	delete(m.names, key)
}

// Rename moves an entry from oldName to newName without touching its hash,
// chunk count, or embedding model — used by the rename branch of the
// smart-ingestion algorithm (spec.md §4.3 step 3), which updates the
// manifest key without re-embedding.
func (m *Manifest) Rename(oldName, newName, newSourcePath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldKey := strings.ToLower(oldName)
	entry, ok := m.entries[oldKey]
	if !ok {
		return
	}
	delete(m.entries, oldKey)
	delete(m.names, oldKey)

	entry.FileName = newName
	entry.SourcePath = newSourcePath
	newKey := strings.ToLower(newName)
	m.entries[newKey] = entry
	m.names[newKey] = newName
	m.hashIndex.Add(entry.ContentHash, newKey)
}

// FindByHash returns the entry whose contentHash matches hash, if any,
// consulting the bounded LRU reverse index first and falling back to a
// linear scan on a cache miss (the index is an optimization, not a source
// of truth).
func (m *Manifest) FindByHash(hash string) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if key, ok := m.hashIndex.Get(hash); ok {
		if e, ok := m.entries[key]; ok && e.ContentHash == hash {
			return e, true
		}
	}
	for _, e := range m.entries {
		if e.ContentHash == hash {
			return e, true
		}
	}
	return Entry{}, false
}

// IsUnchanged reports whether fileName is already recorded with hash.
func (m *Manifest) IsUnchanged(fileName, hash string) bool {
	e, ok := m.Get(fileName)
	return ok && e.ContentHash == hash
}

// GetOrphans returns every manifest entry whose fileName is absent from
// currentFileNames (case-insensitive comparison).
func (m *Manifest) GetOrphans(currentFileNames []string) []Entry {
	seen := make(map[string]bool, len(currentFileNames))
	for _, n := range currentFileNames {
		seen[strings.ToLower(n)] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var orphans []Entry
	for key, e := range m.entries {
		if !seen[key] {
			orphans = append(orphans, e)
		}
	}
	return orphans
}

// All returns every entry currently in the manifest, sorted by fileName.
func (m *Manifest) All() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, key := range sortedKeys(m.names) {
		out = append(out, m.entries[key])
	}
	return out
}

func sortedKeys(names map[string]string) []string {
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HashFile computes the SHA-256 content hash of path, grounded on the
// teacher's hashContent (internal/index/coordinator.go).
func HashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
