// Package queue implements the durable, single-worker ingestion queue: a
// FIFO of IngestionJob records persisted to queue.json, processed one at a
// time so ingestion never contends with itself for VectorStore.Save or the
// upstream embedding model.
package queue

import "time"

// Status is a job's position in the state machine:
// pending -> processing -> {completed | failed | cancelled}.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Job is the persisted record for one ingestion request.
type Job struct {
	ID          string     `json:"id"`
	Path        string     `json:"path"`
	Collection  string     `json:"collection"`
	Status      Status     `json:"status"`
	Progress    string     `json:"progress"`
	AddedAt     time.Time  `json:"addedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"errorMessage,omitempty"`
}

func (j *Job) clone() *Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// document is the on-disk shape of queue.json.
type document struct {
	Jobs []*Job `json:"jobs"`
}
