package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhlutterodt/localrag/internal/config"
	"github.com/nhlutterodt/localrag/internal/ingest"
	"github.com/nhlutterodt/localrag/internal/queue"
	"github.com/nhlutterodt/localrag/internal/watcher"
)

// wireWatchers starts one fsnotify watcher per collection recorded in the
// ingestion watchlist, re-enqueuing a job whenever its directory changes
// (SPEC_FULL.md's supplemented live re-ingestion feature). A no-op when
// cfg.WatchEnabled is false, which is the default.
func wireWatchers(ctx context.Context, g *errgroup.Group, cfg *config.Config, q *queue.Queue, logger *slog.Logger) {
	if !cfg.WatchEnabled {
		return
	}

	roots, err := ingest.LoadWatchRoots(cfg.DataDir)
	if err != nil {
		logger.Warn("failed to load ingestion watchlist", "error", err)
		return
	}

	for name, root := range roots {
		name, root := name, root
		g.Go(func() error {
			return watchCollection(ctx, name, root, q, cfg.QueueFlushInterval, logger)
		})
	}
}

// watchCollection watches root until ctx is cancelled, coalescing bursts of
// fsnotify events into at most one re-ingestion job per coalesceWindow
// rather than one job per file touched.
func watchCollection(ctx context.Context, collectionName, root string, q *queue.Queue, coalesceWindow time.Duration, logger *slog.Logger) error {
	w, err := watcher.New(watcher.DefaultOptions())
	if err != nil {
		return fmt.Errorf("create watcher for collection %s: %w", collectionName, err)
	}
	defer w.Stop()

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, root) }()

	ticker := time.NewTicker(coalesceWindow)
	defer ticker.Stop()
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-startErr:
			if err != nil && ctx.Err() == nil {
				logger.Error("watcher stopped unexpectedly", "collection", collectionName, "error", err)
			}
			return nil
		case _, ok := <-w.Events():
			if !ok {
				return nil
			}
			dirty = true
		case werr, ok := <-w.Errors():
			if !ok {
				continue
			}
			logger.Warn("watcher reported error", "collection", collectionName, "error", werr)
		case <-ticker.C:
			if !dirty {
				continue
			}
			dirty = false
			logger.Info("detected change, re-enqueuing collection", "collection", collectionName, "path", root)
			if _, err := q.Enqueue(root, collectionName); err != nil {
				logger.Error("failed to enqueue re-ingestion job", "collection", collectionName, "error", err)
			}
		}
	}
}
