package ingest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/nhlutterodt/localrag/internal/apperr"
)

// watchlistPath is dataDir/watchlist.json: a map of collection name to the
// last ingestion root path queued for it, letting ragd serve restart the
// fsnotify watcher for already-ingested directories after a restart
// (SPEC_FULL.md's live re-ingestion feature) without a caller having to
// remember what path was originally passed to POST /api/queue.
func watchlistPath(dataDir string) string {
	return filepath.Join(dataDir, "watchlist.json")
}

var watchlistMu sync.Mutex

// LoadWatchRoots returns the persisted collection -> root path map, or an
// empty map if no job has ever recorded one.
func LoadWatchRoots(dataDir string) (map[string]string, error) {
	watchlistMu.Lock()
	defer watchlistMu.Unlock()
	return loadWatchRootsLocked(dataDir)
}

func loadWatchRootsLocked(dataDir string) (map[string]string, error) {
	data, err := os.ReadFile(watchlistPath(dataDir))
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, apperr.Internal("failed to read watchlist", err)
	}
	var roots map[string]string
	if err := json.Unmarshal(data, &roots); err != nil {
		return nil, apperr.Internal("failed to parse watchlist", err)
	}
	return roots, nil
}

// recordWatchRoot persists that collection's most recent ingestion root
// was path, merging into the existing watchlist.
func recordWatchRoot(dataDir, collection, path string) error {
	watchlistMu.Lock()
	defer watchlistMu.Unlock()

	roots, err := loadWatchRootsLocked(dataDir)
	if err != nil {
		return err
	}
	roots[collection] = path

	data, err := json.MarshalIndent(roots, "", "  ")
	if err != nil {
		return apperr.Internal("failed to marshal watchlist", err)
	}

	tmp := watchlistPath(dataDir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Internal("failed to write watchlist", err)
	}
	if err := os.Rename(tmp, watchlistPath(dataDir)); err != nil {
		return apperr.Internal("failed to rename watchlist into place", err)
	}
	return nil
}
