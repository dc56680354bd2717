package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	fn func(ctx context.Context, job *Job, report func(string)) error
}

func (p *fakeProcessor) Process(ctx context.Context, job *Job, report func(string)) error {
	return p.fn(ctx, job, report)
}

func newTestQueue(t *testing.T, fn func(context.Context, *Job, func(string)) error) (*Queue, string) {
	dir := t.TempDir()
	q, err := New(dir, &fakeProcessor{fn: fn}, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	require.NoError(t, q.Load())
	return q, dir
}

func TestEnqueueProcessesFIFO(t *testing.T) {
	var processed []string
	done := make(chan struct{})
	q, _ := newTestQueue(t, func(ctx context.Context, job *Job, report func(string)) error {
		processed = append(processed, job.ID)
		if len(processed) == 2 {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	j1, err := q.Enqueue("/tmp/a", "docs")
	require.NoError(t, err)
	j2, err := q.Enqueue("/tmp/b", "docs")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs were not processed in time")
	}

	require.Equal(t, []string{j1.ID, j2.ID}, processed)

	jobs := q.List()
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		require.Equal(t, StatusCompleted, j.Status)
	}
}

func TestCancelOnlyPending(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	q, _ := newTestQueue(t, func(ctx context.Context, job *Job, report func(string)) error {
		close(started)
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	j, err := q.Enqueue("/tmp/a", "docs")
	require.NoError(t, err)

	<-started
	err = q.Cancel(j.ID)
	require.Error(t, err, "processing jobs cannot be cancelled")

	close(release)
}

func TestRestartRecoveryMarksProcessingFailed(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	doc := document{Jobs: []*Job{
		{ID: "abc", Status: StatusProcessing, AddedAt: now},
		{ID: "def", Status: StatusPending, AddedAt: now},
	}}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queue.json"), data, 0o644))

	q, err := New(dir, &fakeProcessor{fn: func(context.Context, *Job, func(string)) error { return nil }}, slog.Default())
	require.NoError(t, err)
	require.NoError(t, q.Load())

	jobs := q.List()
	require.Len(t, jobs, 2)
	require.Equal(t, StatusFailed, jobs[0].Status)
	require.Equal(t, "interrupted by restart", jobs[0].Error)
	require.Equal(t, StatusPending, jobs[1].Status)
}
