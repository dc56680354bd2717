package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nhlutterodt/localrag/internal/gitignore"
)

// FSWatcher is the fsnotify-backed implementation of Watcher, grounded on
// the teacher's HybridWatcher but narrowed to fsnotify only: a single
// workstation is assumed to support inotify/kqueue/ReadDirectoryChangesW,
// so the teacher's polling fallback has no home here.
type FSWatcher struct {
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	ignore    *gitignore.Matcher
	events    chan []FileEvent
	errors    chan error
	stopCh    chan struct{}

	mu       sync.RWMutex
	rootPath string
	opts     Options
	stopped  bool
}

var _ Watcher = (*FSWatcher)(nil)

// New creates an fsnotify-backed watcher with the given options.
func New(opts Options) (*FSWatcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &FSWatcher{
		fsw:       fsw,
		debouncer: NewDebouncer(opts.DebounceWindow),
		ignore:    gitignore.New(),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}
	for _, p := range opts.IgnorePatterns {
		w.ignore.AddPattern(p)
	}
	return w, nil
}

// Start begins watching path recursively until ctx is cancelled or Stop is called.
func (w *FSWatcher) Start(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.mu.Lock()
	w.rootPath = abs
	w.mu.Unlock()

	w.loadGitignore()

	if err := w.addRecursive(abs); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	go w.forwardDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// Stop stops the watcher. Safe to call multiple times.
func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	close(w.stopCh)
	w.debouncer.Stop()
	err := w.fsw.Close()
	close(w.events)
	close(w.errors)
	return err
}

// Events returns the debounced, coalesced event stream.
func (w *FSWatcher) Events() <-chan FileEvent {
	// FileEvent is emitted one at a time to satisfy the Watcher interface;
	// forwardDebounced passes whole debouncer batches to w.events and this
	// goroutine unrolls them.
	out := make(chan FileEvent)
	go func() {
		defer close(out)
		for batch := range w.events {
			for _, e := range batch {
				out <- e
			}
		}
	}()
	return out
}

// Errors returns non-fatal watcher errors.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}

func (w *FSWatcher) handle(event fsnotify.Event) {
	w.mu.RLock()
	root := w.rootPath
	w.mu.RUnlock()

	relPath, err := filepath.Rel(root, event.Name)
	if err != nil {
		relPath = event.Name
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	if w.shouldIgnore(relPath, isDir) {
		return
	}

	if filepath.Base(event.Name) == ".gitignore" {
		w.loadGitignore()
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			_ = w.fsw.Add(event.Name)
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: relPath, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

func (w *FSWatcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			select {
			case w.events <- batch:
			default:
				slog.Warn("watcher event buffer full, dropping batch", slog.Int("batch_size", len(batch)))
			}
		}
	}
}

func (w *FSWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(root, path)
		if relPath == "." {
			return w.fsw.Add(path)
		}
		if w.shouldIgnoreDir(relPath) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *FSWatcher) shouldIgnoreDir(relPath string) bool {
	if strings.HasPrefix(relPath, ".git") || relPath == ".git" {
		return true
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ignore.Match(relPath, true)
}

func (w *FSWatcher) shouldIgnore(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return true
	}
	if strings.HasPrefix(relPath, ".git/") || relPath == ".git" {
		return true
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ignore.Match(relPath, isDir)
}

func (w *FSWatcher) loadGitignore() {
	w.mu.Lock()
	root := w.rootPath
	m := gitignore.New()
	for _, p := range w.opts.IgnorePatterns {
		m.AddPattern(p)
	}
	w.mu.Unlock()

	gitignorePath := filepath.Join(root, ".gitignore")
	if err := m.AddFromFile(gitignorePath, ""); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load root .gitignore", slog.String("path", gitignorePath), slog.String("error", err.Error()))
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() != ".gitignore" || path == gitignorePath {
			return nil
		}
		base, _ := filepath.Rel(root, filepath.Dir(path))
		if err := m.AddFromFile(path, base); err != nil {
			slog.Warn("failed to read nested .gitignore", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})

	w.mu.Lock()
	w.ignore = m
	w.mu.Unlock()
}

func (w *FSWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}
