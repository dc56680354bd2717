package querylog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Logger is the single-writer, fire-and-forget JSONL sink for query
// telemetry. Log never blocks the request path: it enqueues onto a
// 4096-entry buffered channel and returns immediately, handing the send to
// a one-off goroutine when the buffer is full; a dedicated goroutine drains
// the channel and appends to logsDir/query_log.jsonl.
type Logger struct {
	logger *slog.Logger
	path   string

	queue chan Entry
	done  chan struct{}

	mu   sync.Mutex
	file *os.File
}

// New opens (creating if necessary) logsDir/query_log.jsonl and starts the
// background writer goroutine.
func New(logsDir string, logger *slog.Logger) (*Logger, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(logsDir, "query_log.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	l := &Logger{
		logger: logger,
		path:   path,
		file:   f,
		queue:  make(chan Entry, 4096),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues entry for the background writer. Never blocks the caller
// beyond an (effectively unbounded, buffered) channel send.
func (l *Logger) Log(entry Entry) {
	entry.Query = TruncateQuery(entry.Query)
	select {
	case l.queue <- entry:
	default:
		// Queue is transiently full (writer stalled on disk I/O); spawn a
		// one-off goroutine so Log itself never blocks the request path,
		// per spec.md §4.8's "latency must not be observable" requirement.
		go func() { l.queue <- entry }()
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for entry := range l.queue {
		l.append(entry)
	}
}

func (l *Logger) append(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("failed to marshal query log entry", "error", err)
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		l.logger.Error("failed to append query log entry", "error", err)
	}
}

// Flush drains any queued entries and fsyncs the file. Called on
// SIGINT/SIGTERM before process exit.
func (l *Logger) Flush() error {
	close(l.queue)
	<-l.done

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.file.Close()
}
